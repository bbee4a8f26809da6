// Package config provides application configuration management.
//
// The config package loads the server, resource limit, executor, host
// function and logging settings from a YAML file and from SCRIPTBOX_
// prefixed environment variables, applying defaults for anything unset.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("max operations: %d\n", cfg.Policy().MaxOperations)
package config
