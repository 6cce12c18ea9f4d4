package httpapi

import (
	"context"
	"net/http"

	"github.com/RevCBH/gafferd/internal/gafferr"
	"github.com/RevCBH/gafferd/internal/keymanager"
)

type contextKey int

const keyContextKey contextKey = iota

// keyFromContext recovers the authenticated Key installed by authMiddleware.
func keyFromContext(ctx context.Context) *keymanager.Key {
	k, _ := ctx.Value(keyContextKey).(*keymanager.Key)
	if k == nil {
		return keymanager.NewDummyKey()
	}
	return k
}

// authMiddleware resolves the X-Api-Key header to a keymanager.Key and
// stores it on the request context. When noAuth is true, every request is
// treated as carrying the permissive DummyKey, mirroring gafferd's
// --no-auth startup flag.
func authMiddleware(keys *keymanager.Manager, noAuth bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if noAuth {
			ctx := context.WithValue(r.Context(), keyContextKey, keymanager.NewDummyKey())
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		apiKey := r.Header.Get("X-Api-Key")
		if apiKey == "" {
			http.Error(w, "missing X-Api-Key header", http.StatusUnauthorized)
			return
		}

		k, err := keys.GetKey(apiKey)
		if err != nil {
			if gerr, ok := asGafferErr(err); ok && gerr.Kind == gafferr.KindKeyNotFound {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}
			http.Error(w, "key lookup failed", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), keyContextKey, k)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func asGafferErr(err error) (*gafferr.Error, bool) {
	gerr, ok := err.(*gafferr.Error)
	return gerr, ok
}

// requirePermission writes a 403 and returns false if key lacks permission
// over what; returns true and writes nothing otherwise.
func requirePermission(w http.ResponseWriter, key *keymanager.Key, permission, what string) bool {
	ok, err := key.Can(permission, what)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// writeError maps a gafferr-typed error to the appropriate HTTP status.
func writeError(w http.ResponseWriter, err error) {
	gerr, ok := asGafferErr(err)
	if !ok {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	switch gerr.Kind {
	case gafferr.KindJobNotFound, gafferr.KindKeyNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case gafferr.KindJobExists, gafferr.KindKeyConflict:
		http.Error(w, err.Error(), http.StatusConflict)
	case gafferr.KindInvalidKey:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case gafferr.KindUnknownPermission:
		// A programmer error, not a client mistake: the permission name
		// itself is outside the read/write/manage vocabulary.
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case gafferr.KindSpawnFailed:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
