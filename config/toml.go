package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

// WriteConfigFile renders config using the template and writes it to path.
func WriteConfigFile(path string, config *Config) error {
	var buffer bytes.Buffer
	if err := configTemplate.Execute(&buffer, config); err != nil {
		return err
	}
	return os.WriteFile(path, buffer.Bytes(), 0600)
}

const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

###############################################
###        Base Configuration Options       ###
###############################################

# Minimum log level: debug, info, warn or error
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

###############################################
###       RPC Server Configuration          ###
###############################################
[rpc]

# TCP address for the HTTP server to listen on
laddr = "{{ .RPC.ListenAddr }}"

# Sustained per-IP request rate; 0 disables rate limiting
rate-limit = {{ .RPC.RateLimit }}

# Per-IP burst allowance
rate-burst = {{ .RPC.RateBurst }}

# IPs exempt from rate limiting
whitelist = [{{ range .RPC.Whitelist }}{{ printf "%q, " . }}{{end}}]

###############################################
###     Block Data Source Configuration     ###
###############################################
[provider]

# Base URL of the block data node's JSON API
remote = "{{ .Provider.Remote }}"

# Single upstream request timeout
timeout = "{{ .Provider.Timeout }}"

###############################################
###      Proof Builder Configuration        ###
###############################################
[proof]

# Network the node serves
network-id = {{ .Proof.NetworkID }}

# Maximum proof chain length, in hops
max-hops = {{ .Proof.MaxHops }}

# Require the transaction hash in every request
require-tx-hash = {{ .Proof.RequireTxHash }}

# Retries for transient upstream failures
fetch-attempts = {{ .Proof.FetchAttempts }}

# Base backoff between retries; doubles on each attempt
retry-delay = "{{ .Proof.RetryDelay }}"

###############################################
###        Proof Cache Configuration        ###
###############################################
[cache]

# How long a finished build outcome is retained
ttl = "{{ .Cache.TTL }}"

# How often expired entries are compacted away
sweep-interval = "{{ .Cache.SweepInterval }}"

# Upper bound on one detached build
build-timeout = "{{ .Cache.BuildTimeout }}"

###############################################
###   Instrumentation Configuration         ###
###############################################
[instrumentation]

# Expose Prometheus metrics at /metrics
prometheus = {{ .Instrumentation.Prometheus }}

# Metrics namespace
namespace = "{{ .Instrumentation.Namespace }}"
`
