package cdn

import (
	"context"
	"errors"
	"fmt"

	cdnapi "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/cdn/v20180606"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	sdkerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	"go.uber.org/zap"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/config"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

const tencentEndpoint = "cdn.tencentcloudapi.com"

// TencentWarmer warms URLs through Tencent Cloud CDN's PushUrlsCache API.
type TencentWarmer struct {
	client *cdnapi.Client
}

// NewTencentWarmer builds a warmer from static credentials.
func NewTencentWarmer(cfg *config.TencentConfig) (*TencentWarmer, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("tencent cloud credentials are not configured")
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = tencentEndpoint

	client, err := cdnapi.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("create tencent cdn client: %w", err)
	}

	return &TencentWarmer{client: client}, nil
}

// Warm submits the URLs for edge-cache preheating. Provider-side
// rejections (quota, unregistered domain, malformed URL) come back as an
// unsuccessful Result rather than an error.
func (w *TencentWarmer) Warm(ctx context.Context, urls []string) (*Result, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no urls to warm")
	}

	encoded := make([]string, len(urls))
	for i, u := range urls {
		encoded[i] = EncodeURL(u)
	}

	req := cdnapi.NewPushUrlsCacheRequest()
	req.Urls = common.StringPtrs(encoded)

	resp, err := w.client.PushUrlsCacheWithContext(ctx, req)
	if err != nil {
		var sdkErr *sdkerrors.TencentCloudSDKError
		if errors.As(err, &sdkErr) {
			logger.Log.Warn("Tencent CDN rejected warm request",
				zap.String("code", sdkErr.Code),
				zap.String("message", sdkErr.Message))
			return &Result{
				Success: false,
				Message: fmt.Sprintf("%s: %s", sdkErr.Code, sdkErr.Message),
			}, nil
		}
		return nil, fmt.Errorf("push urls cache: %w", err)
	}

	taskID := ""
	if resp.Response != nil && resp.Response.TaskId != nil {
		taskID = *resp.Response.TaskId
	}

	logger.Log.Info("Submitted CDN warm request",
		zap.Int("urls", len(encoded)),
		zap.String("taskId", taskID))

	return &Result{Success: true, TaskID: taskID, Message: "submitted"}, nil
}

// TaskStatus looks up the progress of a prior warm task.
func (w *TencentWarmer) TaskStatus(ctx context.Context, taskID string) (string, error) {
	if taskID == "" {
		return "", fmt.Errorf("task id is empty")
	}

	req := cdnapi.NewDescribePushTasksRequest()
	req.TaskId = common.StringPtr(taskID)

	resp, err := w.client.DescribePushTasksWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("describe push tasks: %w", err)
	}

	if resp.Response == nil || len(resp.Response.PushLogs) == 0 {
		return "unknown", nil
	}

	log := resp.Response.PushLogs[0]
	if log.Status == nil {
		return "unknown", nil
	}
	return *log.Status, nil
}
