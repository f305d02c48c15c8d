package protocol

import (
	"encoding/json"
	"strconv"

	"github.com/fansqz/go-debug-adapter/adapter/source_map"
	"github.com/fansqz/go-debug-adapter/constants"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/tidwall/gjson"
)

// CommonConfig launch和attach共有的配置
type CommonConfig struct {
	Program         string                    `json:"program"`
	StopOnEntry     bool                      `json:"stopOnEntry"`
	InitCommands    []string                  `json:"initCommands"`
	PreRunCommands  []string                  `json:"preRunCommands"`
	PostRunCommands []string                  `json:"postRunCommands"`
	ExitCommands    []string                  `json:"exitCommands"`
	Expressions     constants.ExpressionKind  `json:"expressions"`
	SourceLanguages []string                  `json:"sourceLanguages"`
	ShowDisassembly constants.ShowDisassembly `json:"showDisassembly"`
	// SourceMap 保留用户配置中的顺序
	SourceMap []source_map.Rule `json:"-"`
}

// LaunchConfig launch请求的arguments
type LaunchConfig struct {
	CommonConfig
	Args     []string          `json:"args"`
	Cwd      string            `json:"cwd"`
	Env      map[string]string `json:"env"`
	Terminal string            `json:"terminal"`
	NoDebug  bool              `json:"noDebug"`
}

// AttachConfig attach请求的arguments，pid可以是数字或数字字符串
type AttachConfig struct {
	CommonConfig
	PID     int  `json:"-"`
	WaitFor bool `json:"waitFor"`
}

func ParseLaunchConfig(raw json.RawMessage) (*LaunchConfig, error) {
	config := &LaunchConfig{}
	if len(raw) != 0 {
		if err := json.Unmarshal(raw, config); err != nil {
			return nil, e.NewUserError("Invalid launch configuration: %v", err)
		}
	}
	if err := config.CommonConfig.complete(raw); err != nil {
		return nil, err
	}
	if config.Program == "" {
		return nil, e.NewUserError("\"program\" property is required for launch")
	}
	return config, nil
}

func ParseAttachConfig(raw json.RawMessage) (*AttachConfig, error) {
	config := &AttachConfig{}
	if len(raw) != 0 {
		if err := json.Unmarshal(raw, config); err != nil {
			return nil, e.NewUserError("Invalid attach configuration: %v", err)
		}
	}
	if err := config.CommonConfig.complete(raw); err != nil {
		return nil, err
	}
	pid := gjson.GetBytes(raw, "pid")
	switch pid.Type {
	case gjson.Number:
		config.PID = int(pid.Int())
	case gjson.String:
		n, err := strconv.Atoi(pid.String())
		if err != nil {
			return nil, e.NewUserError("Process id must be a positive integer: %s", pid.String())
		}
		config.PID = n
	case gjson.Null:
	default:
		return nil, e.NewUserError("Process id must be a positive integer")
	}
	if config.PID == 0 && config.Program == "" {
		return nil, e.NewUserError("Either \"program\" or \"pid\" is required for attach")
	}
	return config, nil
}

func (c *CommonConfig) complete(raw json.RawMessage) error {
	if c.Expressions == "" {
		c.Expressions = constants.ExpressionSimple
	}
	switch c.ShowDisassembly {
	case "":
		c.ShowDisassembly = constants.ShowDisassemblyAuto
	case constants.ShowDisassemblyAuto, constants.ShowDisassemblyAlways, constants.ShowDisassemblyNever:
	default:
		return e.NewUserError("Invalid showDisassembly value: %s", c.ShowDisassembly)
	}
	sourceMap := gjson.GetBytes(raw, "sourceMap")
	if !sourceMap.Exists() || sourceMap.Type == gjson.Null {
		return nil
	}
	if !sourceMap.IsObject() {
		return e.NewUserError("\"sourceMap\" must be an object")
	}
	var err error
	sourceMap.ForEach(func(key, value gjson.Result) bool {
		rule := source_map.Rule{Pattern: key.String()}
		switch value.Type {
		case gjson.Null:
		case gjson.String:
			replacement := value.String()
			rule.Replacement = &replacement
		default:
			err = e.NewUserError("Invalid sourceMap value for %q", key.String())
			return false
		}
		c.SourceMap = append(c.SourceMap, rule)
		return true
	})
	return err
}
