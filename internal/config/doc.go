// Package config loads and merges Scribe client configuration.
//
// Configuration is merged from multiple sources in priority order:
//
//  1. Global config (~/.config/scribe/scribe.json or scribe.jsonc)
//  2. Project config (scribe.json, scribe.jsonc, .scribe/scribe.json)
//  3. SCRIBE_CONFIG file override
//  4. SCRIBE_CONFIG_CONTENT inline JSON
//  5. Environment variables (SCRIBE_SERVER_URL, SCRIBE_API_KEY,
//     SCRIBE_SESSION, SCRIBE_APPROVAL)
//
// Both JSON and JSONC (comments allowed, via tidwall/jsonc) are accepted.
// String values support {env:VAR} and {file:path} interpolation, so secrets
// can live outside the config file:
//
//	{
//	  "server_url": "http://localhost:8147",
//	  "api_key": "{env:SCRIBE_API_KEY}",
//	  "approval": {
//	    "tools": {"search": "allow"},
//	    "edit_paths": {"chapters/**": "allow", "main.tex": "ask"},
//	    "commands": {"latexmk *": "allow", "rm *": "deny"}
//	  }
//	}
//
// ApprovalPolicy converts the configured rules into the approval package's
// Policy; unknown action strings degrade to ask, never to allow.
package config
