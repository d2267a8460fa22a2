package bootstrap

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/wolfman30/atacado-crm/cmd/mainconfig"
	appconfig "github.com/wolfman30/atacado-crm/internal/config"
)

// AWSLoader resolves the shared SDK config. Builders only call it when a
// provider that needs AWS is selected.
type AWSLoader func(ctx context.Context) (aws.Config, error)

// NewAWSLoader loads the SDK config once and reuses it.
func NewAWSLoader(cfg *appconfig.Config) AWSLoader {
	var (
		once   sync.Once
		awsCfg aws.Config
		err    error
	)
	return func(ctx context.Context) (aws.Config, error) {
		once.Do(func() {
			awsCfg, err = mainconfig.LoadAWSConfig(ctx, cfg)
		})
		return awsCfg, err
	}
}
