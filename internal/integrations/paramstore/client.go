package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter resolves a parameter key relative to the configured prefix.
type Getter interface {
	GetParameter(ctx context.Context, key string) (string, error)
}

// NotFoundError reports a parameter that does not exist or has no value.
type NotFoundError struct {
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("paramstore: parameter %q missing value", e.Name)
	}
	return fmt.Sprintf("paramstore: parameter %q not found: %v", e.Name, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Misconfigured marks a missing parameter as a deployment problem rather
// than a transient failure.
func (e *NotFoundError) Misconfigured() bool { return true }

// Client reads decrypted parameters below a fixed prefix, e.g. /storybook.
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client. The prefix is normalized to have no trailing slash.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: prefix must not be empty")
	}
	return &Client{api: api, prefix: prefix}, nil
}

// Name returns the fully qualified parameter name for key.
func (c *Client) Name(key string) string {
	return c.prefix + "/" + strings.TrimLeft(strings.TrimSpace(key), "/")
}

func (c *Client) GetParameter(ctx context.Context, key string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	if strings.Trim(strings.TrimSpace(key), "/") == "" {
		return "", errors.New("paramstore: key is required")
	}
	name := c.Name(key)

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return "", &NotFoundError{Name: name, Err: err}
		}
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil || strings.TrimSpace(*out.Parameter.Value) == "" {
		return "", &NotFoundError{Name: name}
	}
	return *out.Parameter.Value, nil
}
