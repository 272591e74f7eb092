// Package config handles configuration loading for coven-desk.
//
// # Configuration File
//
// Location (in order):
//
//  1. Path from COVEN_DESK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven-desk/desk.yaml
//  3. ~/.config/coven-desk/desk.yaml
//
// Files ending in .toml are parsed as TOML, anything else as YAML. Values
// omitted from the file keep the defaults from Default().
//
// # Environment Variable Expansion
//
//	realtime:
//	  redis_password: "${COVEN_DESK_REDIS_PASSWORD}"
//
// # Sections
//
//	server:
//	  http_addr: "127.0.0.1:8090"
//	database:
//	  path: "/var/lib/coven-desk/desk.db"
//	local_state:
//	  path: "~/.local/share/coven-desk/local.db"   # chat widget only
//	realtime:
//	  transport: "memory"                            # memory, redis
//	  redis_addr: "localhost:6379"
//	  resubscribe_backoff: "500ms"
//	autoreply:
//	  typing_delay: "1500ms"
//	routing:
//	  departments:
//	    complaint: "ombudsman"                       # category -> department
//	janitor:
//	  enabled: true
//	  schedule: "*/5 * * * *"                        # cron, 5 fields
//	  idle_timeout: "24h"
//	widget:
//	  title: "Atendimento"
//	  position: "bottom-right"                       # bottom-right, bottom-left
//	  auto_focus: true
//	logging:
//	  level: "info"                                  # debug, info, warn, error
//	  format: "text"                                 # text, json
package config
