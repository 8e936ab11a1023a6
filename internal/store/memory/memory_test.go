package memory

import (
	"testing"

	"signal-advisor/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, New())
}
