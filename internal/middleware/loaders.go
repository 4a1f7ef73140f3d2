package middleware

import (
	"net/http"

	"relayloader/internal/loader"
	"relayloader/internal/model"
)

// Loaders gives every request a fresh loader registry under namespace, so
// batches and caches never outlive the request that filled them.
func Loaders(models *model.Registry, store loader.Store, namespace string, opts ...loader.RegistryOption) func(http.Handler) http.Handler {
	if namespace == "" {
		namespace = loader.DefaultNamespace
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reg := loader.NewRegistry(models, store, opts...)
			ctx := loader.WithRegistry(r.Context(), namespace, reg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
