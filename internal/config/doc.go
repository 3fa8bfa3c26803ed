// Package config provides loading and environment overlay for repository
// configuration. It exposes a Default() baseline; files may be JSON or YAML.
//
// Example:
//
//	cfg, err := config.Load("/etc/dorepo.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
