// Command connect-manifest records the named resources of a Connect instance.
//
// Usage:
//
//	connect-manifest --instance-id <id> [-o manifest.json|s3://bucket/key] [-f json|yaml]
//
// The manifest maps contact flows, modules, queues, prompts, hours of
// operation, phone numbers, quick connects and routing profiles by name, so
// flow content exported from one instance can be re-pointed at another.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/jarrod-lowe/connect-custom-resources/internal/connectapi"
	"github.com/jarrod-lowe/connect-custom-resources/internal/manifest"
	"github.com/spf13/cobra"
)

// Clients used to build and store a manifest (injectable for testing)
type Clients struct {
	Connect connectapi.InstanceLister
	STS     manifest.CallerIdentity
	S3      manifest.ObjectPutter
}

type clientFactory func(ctx context.Context) (*Clients, error)

func awsClients(ctx context.Context) (*Clients, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Clients{
		Connect: connect.NewFromConfig(cfg),
		STS:     sts.NewFromConfig(cfg),
		S3:      s3.NewFromConfig(cfg),
	}, nil
}

type options struct {
	instanceID string
	output     string
	format     string
	pageSize   int32
}

func main() {
	if err := newRootCmd(awsClients).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(newClients clientFactory) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "connect-manifest",
		Short: "Record the named resources of an Amazon Connect instance",
		Long: `connect-manifest lists the resources of an Amazon Connect instance and
writes a name-keyed manifest of their ARNs and ids.

Write to stdout:

    connect-manifest --instance-id 0d5b1a2c-...

Upload YAML to S3:

    connect-manifest --instance-id 0d5b1a2c-... -f yaml -o s3://bucket/source.yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			clients, err := newClients(cmd.Context())
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts, clients, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.instanceID, "instance-id", "", "Connect instance id or ARN")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file, - for stdout, or s3://bucket/key")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().Int32Var(&opts.pageSize, "page-size", manifest.DefaultPageSize, "Results requested per list call")
	_ = cmd.MarkFlagRequired("instance-id")

	return cmd
}

func run(ctx context.Context, opts options, clients *Clients, stdout io.Writer) error {
	format, err := manifest.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.pageSize < 1 || opts.pageSize > manifest.MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d, got %d", manifest.MaxPageSize, opts.pageSize)
	}

	builder := &manifest.Builder{
		Connect:  clients.Connect,
		STS:      clients.STS,
		PageSize: opts.pageSize,
	}
	m, err := builder.Build(ctx, opts.instanceID)
	if err != nil {
		return fmt.Errorf("failed to build manifest: %w", err)
	}

	data, err := manifest.Encode(m, format)
	if err != nil {
		return err
	}

	sink := &manifest.Sink{Stdout: stdout, S3: clients.S3}
	return sink.Write(ctx, opts.output, format, data)
}
