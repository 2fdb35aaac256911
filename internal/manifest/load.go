package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

// ObjectGetter downloads objects from S3.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Load reads a manifest from an s3://bucket/key URI or a local file. JSON
// and YAML are both accepted.
func Load(ctx context.Context, src string, getter ObjectGetter) (*Manifest, error) {
	data, err := read(ctx, src, getter)
	if err != nil {
		return nil, err
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", src, err)
	}
	return m, nil
}

// Decode parses a JSON or YAML manifest.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(trimmed, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func read(ctx context.Context, src string, getter ObjectGetter) ([]byte, error) {
	if !strings.HasPrefix(src, "s3://") {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		return data, nil
	}

	bucket, key, err := parseS3URI(src)
	if err != nil {
		return nil, err
	}
	if getter == nil {
		return nil, fmt.Errorf("no S3 client configured for %s", src)
	}
	out, err := getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download manifest: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to download manifest: %w", err)
	}
	return data, nil
}
