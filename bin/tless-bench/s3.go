package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/log"
	"github.com/tless/tless-bench/pkg/objectstore"
	"github.com/tless/tless-bench/pkg/types"
	"github.com/tless/tless-bench/pkg/workflows"
)

type s3Options struct {
	endpoint string
	bucket   string
}

func newS3Cmd() *cobra.Command {
	opts := &s3Options{}
	s3Cmd := &cobra.Command{
		Use:   "s3",
		Short: "Inspect and prepare the object store",
	}
	s3Cmd.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "", "object store URL, e.g. http://10.96.4.20:9000")
	s3Cmd.PersistentFlags().StringVar(&opts.bucket, "bucket", "", "bucket, defaults to objectstore.bucket")
	_ = s3Cmd.MarkPersistentFlagRequired("endpoint")

	s3Cmd.AddCommand(
		&cobra.Command{
			Use:   "list-buckets",
			Short: "List every bucket",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				client, _, err := opts.client()
				if err != nil {
					return err
				}
				buckets, err := client.ListBuckets(cmd.Context())
				if err != nil {
					return err
				}
				for _, b := range buckets {
					fmt.Fprintln(cmd.OutOrStdout(), b)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list-keys [prefix]",
			Short: "List the keys of the bucket, optionally under a prefix",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, details, err := opts.client()
				if err != nil {
					return err
				}
				prefix := ""
				if len(args) == 1 {
					prefix = args[0]
				}
				keys, err := client.ListKeys(cmd.Context(), details.Bucket, prefix)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear-bucket",
			Short: "Delete every key of the bucket",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				client, details, err := opts.client()
				if err != nil {
					return err
				}
				return client.ClearBucket(cmd.Context(), details.Bucket)
			},
		},
		&cobra.Command{
			Use:   "clear-dir <prefix>",
			Short: "Delete every key under a prefix",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, details, err := opts.client()
				if err != nil {
					return err
				}
				return client.ClearDir(cmd.Context(), details.Bucket, args[0])
			},
		},
		&cobra.Command{
			Use:   "wait-key <key>",
			Short: "Block until a key exists, printing when it was seen",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, details, err := opts.client()
				if err != nil {
					return err
				}
				seen, found, err := client.WaitForKey(cmd.Context(), details.Bucket, args[0])
				if err != nil {
					return err
				}
				if !found {
					return cerrors.Error{ErrorCode: cerrors.ErrorTypeMeasurementTimeout, Target: args[0],
						Reason: fmt.Sprintf("key not seen within %v", details.KeyTimeout)}
				}
				fmt.Fprintln(cmd.OutOrStdout(), seen.Format(time.RFC3339Nano))
				return nil
			},
		},
		newUploadDirCmd(opts),
		newUploadWorkflowCmd(opts),
	)
	return s3Cmd
}

func newUploadDirCmd(opts *s3Options) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "upload-dir <host-path> <prefix>",
		Short: "Upload a host directory under a key prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, details, err := opts.client()
			if err != nil {
				return err
			}
			return client.UploadDir(cmd.Context(), details.Bucket, args[0], args[1], overwrite)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace keys that already exist")
	return cmd
}

func newUploadWorkflowCmd(opts *s3Options) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "upload-workflow <name>",
		Short: "Upload the input state of a catalog workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, details, err := opts.client()
			if err != nil {
				return err
			}
			catalog, err := workflows.Load(details.WorkflowsRoot, details.WorkflowCatalog)
			if err != nil {
				return err
			}
			d, err := catalog.Lookup(args[0])
			if err != nil {
				return cerrors.Configuration(err.Error())
			}
			return uploadWorkflow(cmd.Context(), client, catalog, d, details.Bucket, overwrite)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace keys that already exist")
	return cmd
}

func uploadWorkflow(ctx context.Context, store workflows.Uploader, catalog *workflows.Catalog, d workflows.Descriptor, bucket string, overwrite bool) error {
	log.Infof("[Upload]: Uploading %s to %s/%s", catalog.StatePath(d), bucket, d.Name)
	return store.UploadDir(ctx, bucket, catalog.StatePath(d), d.Name, overwrite)
}

// client builds an object-store client from the configuration and flags.
// kubectl is not needed here, so a missing COCO_SOURCE is tolerated.
func (o *s3Options) client() (*objectstore.Client, *types.ExperimentDetails, error) {
	experimentsDetails, err := loadDetails(func(v *viper.Viper) error {
		v.SetDefault("cluster.kubectl", "kubectl")
		if o.bucket != "" {
			v.Set("objectstore.bucket", o.bucket)
		}
		return nil
	})
	if err != nil {
		log.Errorf("Unable to load the configuration, err: %v", err)
		return nil, nil, err
	}
	client, err := objectstore.New(objectstore.Options{
		Endpoint:     o.endpoint,
		AccessKey:    experimentsDetails.AccessKey,
		SecretKey:    experimentsDetails.SecretKey,
		Region:       experimentsDetails.Region,
		PollInterval: experimentsDetails.KeyPollInterval,
		KeyTimeout:   experimentsDetails.KeyTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, experimentsDetails, nil
}
