package config

// Template is written by "capserve config init". Every key is optional;
// commented values are the defaults.
const Template = `# capserve configuration.
# Environment variables (CAPSERVE_*) and command-line flags override these values.

# Folder served when --dir is not given. Empty means the working directory.
# root = ""

# Where connection.json is written while "capserve serve" runs.
# state_dir = ""

[server]
# Must be a loopback host. Port 0 picks a free port.
listen = "127.0.0.1:0"
read_header_timeout = "10s"

[list]
# 1 to 10000.
max_entries = 10000
# skip: ignore unreadable entries; fail: stop at the first one.
on_entry_error = "skip"
# Glob patterns relative to the root; "**" matches any number of directories.
exclude = ["**/.git/**"]

[tokenizer]
# cl100k_base, p50k_base, r50k_base or words.
kind = "cl100k_base"

[log]
level = "info"
# Empty logs to stderr. A file is rotated by size.
file = ""
max_size_mb = 10
max_backups = 3
max_age_days = 28
`
