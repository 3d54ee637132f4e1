package speech

import (
	"errors"
	"net/http"
	"strings"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
)

var errMissingVolcCredentials = errors.New("volcengine speech config missing app id or access token")

// volcHeaders 返回火山引擎语音鉴权头，缺少凭证时报错。
func volcHeaders(cfg config.VolcengineConfig, resourceID, connectID string) (http.Header, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return nil, errMissingVolcCredentials
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)
	return header, nil
}
