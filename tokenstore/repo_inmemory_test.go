package tokenstore_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-gateway/tokenstore"
)

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, func(*testing.T) tokenstore.Store {
		return tokenstore.NewInMemoryStore()
	})
}
