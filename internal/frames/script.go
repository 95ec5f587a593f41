package frames

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

//go:embed bridge_page.js
var pageScript string

const configPlaceholder = "__WALLETKIT_CONFIG__"

// DeviceInfo is reported to dApps through the injected bridge
type DeviceInfo struct {
	Platform           string `json:"platform"`
	AppName            string `json:"appName"`
	AppVersion         string `json:"appVersion"`
	MaxProtocolVersion int    `json:"maxProtocolVersion"`
	Features           []any  `json:"features"`
}

// WalletInfo describes the wallet to dApps
type WalletInfo struct {
	Name     string `json:"name"`
	AppName  string `json:"app_name"`
	ImageURL string `json:"image,omitempty"`
	AboutURL string `json:"about_url,omitempty"`
}

// ScriptConfig parameterizes the injected bridge script
type ScriptConfig struct {
	// Endpoint is the WebSocket path or absolute ws(s) URL of the page
	// transport
	Endpoint        string     `json:"endpoint"`
	WalletName      string     `json:"walletName"`
	ProtocolVersion int        `json:"protocolVersion"`
	ReconnectMs     int        `json:"reconnectMs"`
	DeviceInfo      DeviceInfo `json:"deviceInfo"`
	WalletInfo      WalletInfo `json:"walletInfo"`

	// PageURL overrides location.href as the page identity, for pages
	// served through the proxy
	PageURL string `json:"pageUrl,omitempty"`
}

// DefaultScriptConfig returns the script configuration for endpoint
func DefaultScriptConfig(endpoint string) ScriptConfig {
	return ScriptConfig{
		Endpoint:        endpoint,
		WalletName:      "walletkit",
		ProtocolVersion: 2,
		ReconnectMs:     1000,
		DeviceInfo: DeviceInfo{
			Platform:           "browser",
			AppName:            "WalletKit",
			AppVersion:         "1.0.0",
			MaxProtocolVersion: 2,
			Features: []any{
				"SendTransaction",
				map[string]any{"name": "SendTransaction", "maxMessages": 4},
				map[string]any{"name": "SignData", "types": []string{"text", "binary", "cell"}},
			},
		},
		WalletInfo: WalletInfo{Name: "walletkit", AppName: "walletkit"},
	}
}

// BridgeScript renders the script injected into every page frame
func BridgeScript(cfg ScriptConfig) (string, error) {
	if cfg.Endpoint == "" {
		return "", fmt.Errorf("frames: bridge script needs an endpoint")
	}
	if cfg.WalletName == "" {
		cfg.WalletName = "walletkit"
	}
	if cfg.ReconnectMs <= 0 {
		cfg.ReconnectMs = 1000
	}

	encoded, err := sonic.MarshalString(cfg)
	if err != nil {
		return "", fmt.Errorf("frames: failed to encode script config: %w", err)
	}
	return strings.Replace(pageScript, configPlaceholder, encoded, 1), nil
}
