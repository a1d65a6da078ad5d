// Package health reports whether the service's dependencies are usable.
//
//	checker := health.New(5*time.Second, version)
//	checker.RegisterCheck("repository", func(ctx context.Context) error {
//	    _, err := store.Holds(ctx)
//	    return err
//	})
//	mux.HandleFunc("GET /health", checker.Handler())
package health
