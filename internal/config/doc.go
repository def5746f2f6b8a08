// Package config resolves reqproxy's runtime settings.
//
// Settings come from four layers, each overriding the one before:
//
//	defaults
//	config file      REQPROXY_CONFIG, or ~/.config/reqproxy/config.yaml
//	environment      REQPROXY_BASE_URL, REQPROXY_TIMEOUT, ...
//	flags            --base-url, --timeout, --verbosity, --header k=v
//
// A config file looks like:
//
//	base_url: https://api.example.com
//	timeout: 10s
//	verbosity: 2
//	headers:
//	  Authorization: Bearer ${API_TOKEN}
//	  Accept: application/json
//
// Header values may reference environment variables as $VAR or ${VAR};
// unset variables are left untouched.
//
// Example usage:
//
//	fs := pflag.NewFlagSet("reqproxy", pflag.ExitOnError)
//	config.RegisterFlags(fs)
//	_ = fs.Parse(os.Args[1:])
//
//	cfg, err := config.Load(fs)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println("Base URL:", cfg.BaseURL)
package config
