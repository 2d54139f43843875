// Package config loads and validates the family-tree core configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// FAMILYTREE_* environment variables. The binary loads a local .env file
// before calling Load, so the environment layer can live in that file
// during development.
//
// Security Considerations:
//   - The session secret signs every token; set it through
//     FAMILYTREE_SESSION_SECRET rather than the YAML file
//   - Rotating the secret invalidates every outstanding session
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Session.IdleTimeout)
package config
