package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/scribe-ide/scribe/internal/approval"
	"github.com/scribe-ide/scribe/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/scribe/)
// 2. Project config (scribe.json, .scribe/scribe.json)
// 3. SCRIBE_CONFIG file
// 4. SCRIBE_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "scribe.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "scribe.jsonc"), globalPath)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".scribe")
		loadOnce(filepath.Join(directory, "scribe.json"), directory)
		loadOnce(filepath.Join(directory, "scribe.jsonc"), directory)
		loadOnce(filepath.Join(projectConfigDir, "scribe.json"), projectConfigDir)
		loadOnce(filepath.Join(projectConfigDir, "scribe.jsonc"), projectConfigDir)
	}

	// 3. SCRIBE_CONFIG file override
	if configPath := os.Getenv("SCRIBE_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 4. SCRIBE_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("SCRIBE_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal([]byte(configContent), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.ServerURL != "" {
		target.ServerURL = source.ServerURL
	}
	if source.APIKey != "" {
		target.APIKey = source.APIKey
	}
	if source.Session != "" {
		target.Session = source.Session
	}
	if source.SteeringGraceMs != 0 {
		target.SteeringGraceMs = source.SteeringGraceMs
	}

	if source.Log != nil {
		if target.Log == nil {
			target.Log = &types.LogConfig{}
		}
		if source.Log.Level != "" {
			target.Log.Level = source.Log.Level
		}
		if source.Log.Pretty {
			target.Log.Pretty = true
		}
		if source.Log.File != "" {
			target.Log.File = source.Log.File
		}
	}

	if source.Approval != nil {
		if target.Approval == nil {
			target.Approval = &types.ApprovalConfig{}
		}
		mergeRules(&target.Approval.Tools, source.Approval.Tools)
		mergeRules(&target.Approval.EditPaths, source.Approval.EditPaths)
		mergeRules(&target.Approval.Commands, source.Approval.Commands)
	}
}

func mergeRules(target *map[string]string, source map[string]string) {
	if source == nil {
		return
	}
	if *target == nil {
		*target = make(map[string]string)
	}
	for k, v := range source {
		(*target)[k] = v
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if url := os.Getenv("SCRIBE_SERVER_URL"); url != "" {
		config.ServerURL = url
	}
	if key := os.Getenv("SCRIBE_API_KEY"); key != "" {
		config.APIKey = key
	}
	if session := os.Getenv("SCRIBE_SESSION"); session != "" {
		config.Session = session
	}

	// Approval override (JSON)
	if approvalJSON := os.Getenv("SCRIBE_APPROVAL"); approvalJSON != "" {
		var ac types.ApprovalConfig
		if err := json.Unmarshal([]byte(approvalJSON), &ac); err == nil {
			config.Approval = &ac
		}
	}
}

// ApprovalPolicy converts the configured rules into an approval.Policy.
// Unrecognized actions fall back to ask.
func ApprovalPolicy(config *types.Config) approval.Policy {
	if config.Approval == nil {
		return approval.Policy{}
	}
	return approval.Policy{
		Tools:     toActions(config.Approval.Tools),
		EditPaths: toActions(config.Approval.EditPaths),
		Commands:  toActions(config.Approval.Commands),
	}
}

func toActions(rules map[string]string) map[string]approval.Action {
	if len(rules) == 0 {
		return nil
	}
	actions := make(map[string]approval.Action, len(rules))
	for pattern, raw := range rules {
		switch approval.Action(raw) {
		case approval.ActionAllow, approval.ActionDeny, approval.ActionAsk:
			actions[pattern] = approval.Action(raw)
		default:
			actions[pattern] = approval.ActionAsk
		}
	}
	return actions
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
