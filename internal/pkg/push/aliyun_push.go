package push

import (
	"encoding/json"
	"fmt"

	"course_checkout/internal/pkg/config"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/push"
	"go.uber.org/zap"
)

// PushService 按账号推送通知 (账号即用户 ID)
type PushService interface {
	PushToAccount(accountID string, title, body string, extParameters map[string]string) error
}

type AliyunPushService struct {
	client *push.Client
	appKey int64
}

func NewAliyunPushService(cfg config.PushConfig) (*AliyunPushService, error) {
	if cfg.AccessKeyID == "" || cfg.AppKey == 0 {
		return nil, fmt.Errorf("push config is missing")
	}

	client, err := push.NewClientWithAccessKey(
		cfg.RegionID,
		cfg.AccessKeyID,
		cfg.AccessKeySecret,
	)
	if err != nil {
		return nil, err
	}

	return &AliyunPushService{
		client: client,
		appKey: cfg.AppKey,
	}, nil
}

func (s *AliyunPushService) PushToAccount(accountID string, title, body string, extParameters map[string]string) error {
	request := push.CreatePushRequest()
	request.AppKey = requests.NewInteger(int(s.appKey))
	request.Target = "ACCOUNT"
	request.TargetValue = accountID
	request.Title = title
	request.Body = body
	request.DeviceType = "ALL"  // iOS & Android
	request.PushType = "NOTICE" // 通知

	// 扩展参数 (JSON 序列化)
	if len(extParameters) > 0 {
		extJSON, err := json.Marshal(extParameters)
		if err != nil {
			return err
		}
		request.AndroidExtParameters = string(extJSON)
		request.IOSExtParameters = string(extJSON)
	}

	_, err := s.client.Push(request)
	return err
}

// LogPushService 未配置推送时只写日志
type LogPushService struct {
	log *zap.Logger
}

func NewLogPushService(log *zap.Logger) *LogPushService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogPushService{log: log}
}

func (s *LogPushService) PushToAccount(accountID string, title, body string, extParameters map[string]string) error {
	s.log.Info("push skipped, no provider configured",
		zap.String("account", accountID),
		zap.String("title", title),
		zap.Any("ext", extParameters),
	)
	return nil
}

// NewPushService 根据配置选择阿里云推送或日志实现
func NewPushService(cfg config.PushConfig, log *zap.Logger) PushService {
	service, err := NewAliyunPushService(cfg)
	if err != nil {
		if log != nil {
			log.Warn("aliyun push disabled", zap.Error(err))
		}
		return NewLogPushService(log)
	}
	return service
}
