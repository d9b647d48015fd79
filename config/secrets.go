// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// AWSSecretFetcher resolves secret ARNs through AWS Secrets Manager.
// Values are cached so repeated lookups during startup don't re-hit the API.
type AWSSecretFetcher struct {
	client *secretsmanager.Client
	cache  map[string]cachedSecret
	mu     sync.Mutex
	ttl    time.Duration
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// NewAWSSecretFetcher creates a fetcher using the default AWS credential
// chain. Region may be empty to use the environment default.
func NewAWSSecretFetcher(ctx context.Context, region string) (*AWSSecretFetcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSecretFetcher{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]cachedSecret),
		ttl:    5 * time.Minute,
	}, nil
}

// FetchString retrieves the secret's string value
func (f *AWSSecretFetcher) FetchString(ctx context.Context, secretARN string) (string, error) {
	f.mu.Lock()
	entry, ok := f.cache[secretARN]
	f.mu.Unlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	out, err := f.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretARN,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret value: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	f.mu.Lock()
	f.cache[secretARN] = cachedSecret{value: *out.SecretString, expiresAt: time.Now().Add(f.ttl)}
	f.mu.Unlock()

	return *out.SecretString, nil
}

// maskARN hides the secret name portion of an ARN for log output
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "****"
	}
	return arn[:12] + "****"
}
