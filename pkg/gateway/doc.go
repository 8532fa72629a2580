// Package gateway provides a reusable Rundeck notification gateway that can be embedded into other Go applications.
//
// # Overview
//
// The gateway lets a build system notify a Rundeck instance after a build:
// it triggers a remote job (resolving "project:group/name" references,
// expanding option text against the build's environment and artifacts),
// optionally waits for the execution to finish, and reports an outcome the
// build can be gated on.
//
// # Basic Usage
//
// Create a gateway programmatically:
//
//	cfg := &gateway.Config{
//		Server: gateway.ServerConfig{
//			Port:         8080,
//			ReadTimeout:  30 * time.Second,
//			WriteTimeout: 30 * time.Second,
//		},
//		Auth: gateway.AuthConfig{
//			APIKeys: []gateway.APIKey{
//				{Name: "my-app", Key: "secret-key-here"},
//			},
//		},
//		Sites: []*models.Site{
//			{Name: "prod", URL: "http://rundeck.prod:4440", Token: "api-token"},
//		},
//		Logging: gateway.LoggingConfig{
//			Level:  "info",
//			Format: "json",
//		},
//	}
//
//	gw, err := gateway.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := gw.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Using with Existing HTTP Server
//
// Integrate the gateway into an existing HTTP server:
//
//	gw, err := gateway.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Mount the gateway under a specific path
//	http.Handle("/rundeck/", http.StripPrefix("/rundeck", gw.Handler()))
//
//	http.ListenAndServe(":8080", nil)
//
// # File-based Configuration
//
// Load server, auth and logging settings from a YAML file plus a site
// registry file; ${VAR} references in either file are expanded from the
// environment:
//
//	gw, err := gateway.NewFromConfigFile("configs/config.yaml", "configs/sites.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Environment-based Configuration
//
// Load configuration from environment variables plus a site registry file:
//
//	gw, err := gateway.NewFromEnv("configs/sites.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := gw.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Direct Service Access
//
// Access the service layer directly for programmatic control:
//
//	gw, err := gateway.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc := gw.Service()
//
//	outcome, err := svc.Notify(ctx, "prod", notifier.StepConfig{
//		JobIdentifier:     "web:ops/deploy",
//		Options:           "version=${BUILD_NUMBER}",
//		WaitForCompletion: true,
//	}, build)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Execution: %s (success: %v)\n", outcome.Execution.URL, outcome.Success)
package gateway
