package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"signal-advisor/internal/model"
)

// RESTConfig configures a broker reached over a JSON HTTP API.
type RESTConfig struct {
	BaseURL    string
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string // base32 secret; a fresh code is generated per login
	Timeout    time.Duration
}

var errUnauthorized = errors.New("broker session rejected")

// RESTBroker logs in with client code, password and a TOTP code, then posts
// each order as JSON. A rejected session triggers one re-login and retry.
type RESTBroker struct {
	cfg    RESTConfig
	client *http.Client
	log    *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	token string
}

// NewRESTBroker creates a REST broker. No request is made until the first Submit.
func NewRESTBroker(cfg RESTConfig, log *slog.Logger) *RESTBroker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 7 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RESTBroker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
		now:    time.Now,
	}
}

func (b *RESTBroker) Name() string { return "rest" }

type apiResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type orderRequest struct {
	ClientOrderID   string  `json:"client_order_id"`
	Symbol          string  `json:"symbol"`
	TransactionType string  `json:"transaction_type"`
	Price           float64 `json:"price"`
	StopLoss        float64 `json:"stop_loss"`
	Target          float64 `json:"target"`
	Quantity        int64   `json:"quantity"`
	PositionRef     *int64  `json:"position_ref,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

// Submit places one order, logging in first if there is no session.
func (b *RESTBroker) Submit(ctx context.Context, o model.Order) (Ack, error) {
	req := orderRequest{
		ClientOrderID:   uuid.NewString(),
		Symbol:          o.Symbol,
		TransactionType: string(o.Type),
		Price:           o.Price,
		StopLoss:        o.StopLoss,
		Target:          o.TargetPrice,
		Quantity:        o.Quantity,
		PositionRef:     o.PositionID,
		Notes:           o.Notes,
	}

	ack, err := b.place(ctx, req)
	if errors.Is(err, errUnauthorized) {
		b.log.Warn("broker session expired, logging in again")
		b.clearToken()
		ack, err = b.place(ctx, req)
	}
	return ack, err
}

func (b *RESTBroker) place(ctx context.Context, req orderRequest) (Ack, error) {
	token, err := b.session(ctx)
	if err != nil {
		return Ack{}, err
	}

	var data struct {
		OrderID string `json:"orderid"`
	}
	msg, err := b.post(ctx, "/orders", token, req, &data)
	if err != nil {
		return Ack{Status: StatusRejected, Message: msg}, fmt.Errorf("place %s %s: %w", req.TransactionType, req.Symbol, err)
	}
	return Ack{BrokerOrderID: data.OrderID, Status: StatusAccepted, Message: msg}, nil
}

func (b *RESTBroker) session(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != "" {
		return b.token, nil
	}

	code, err := totp.GenerateCode(b.cfg.TOTPSecret, b.now())
	if err != nil {
		return "", fmt.Errorf("generate totp: %w", err)
	}
	body := map[string]string{
		"clientcode": b.cfg.ClientCode,
		"password":   b.cfg.Password,
		"totp":       code,
	}
	var data struct {
		JWTToken string `json:"jwtToken"`
	}
	if _, err := b.post(ctx, "/auth/login", "", body, &data); err != nil {
		return "", fmt.Errorf("broker login: %w", err)
	}
	if data.JWTToken == "" {
		return "", errors.New("broker login: empty token")
	}
	b.token = data.JWTToken
	b.log.Info("broker session established", slog.String("client", b.cfg.ClientCode))
	return b.token, nil
}

func (b *RESTBroker) clearToken() {
	b.mu.Lock()
	b.token = ""
	b.mu.Unlock()
}

// post sends a JSON body and decodes the response envelope's data into out.
// It returns the envelope message alongside any error.
func (b *RESTBroker) post(ctx context.Context, path, token string, body, out any) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	url := strings.TrimRight(b.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-PrivateKey", b.cfg.APIKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", errUnauthorized
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !env.Status {
		return env.Message, fmt.Errorf("rejected: %s", env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env.Message, fmt.Errorf("decode data: %w", err)
		}
	}
	return env.Message, nil
}
