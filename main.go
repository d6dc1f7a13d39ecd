package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/micha91/music-assistant-server/config"
	"github.com/micha91/music-assistant-server/manifest"
	"github.com/micha91/music-assistant-server/providers"
	"github.com/micha91/music-assistant-server/providers/smb"
	"github.com/micha91/music-assistant-server/server"
	"github.com/micha91/music-assistant-server/source"
)

var addr = flag.String("addr", ":8095", "address to serve the HTTP API on")

var authKey = flag.String("auth_key", "", "auth key for the server")

var storagePath = flag.String("storage", "settings.json", "path of the settings store")

var providersDir = flag.String("providers_dir", "", "directory with <domain>/manifest.json files to load")

var repoType = flag.String("repo_type", "", "manifest bundle source type (fs, git, web, s3, gcs)")

var path = flag.String("path", "", "path of the bundle file (fs) or within the git repository")

var URL = flag.String("url", "", "url of the bundle (git, web)")

var branch = flag.String("branch", "", "git branch to check out")

var bucket = flag.String("bucket", "", "bucket name (s3, gcs)")

var object = flag.String("object", "", "object key of the bundle file (s3, gcs)")

var region = flag.String("region", "", "aws region (s3)")

var refreshInterval = flag.Duration("refresh_interval", time.Minute, "manifest bundle refresh interval")

// newRepository builds the manifest bundle source selected by repo_type,
// or nil when no external source is configured.
func newRepository() (source.Repository, error) {
	switch *repoType {
	case "":
		return nil, nil
	case "fs":
		if *path == "" {
			return nil, errors.New("path is required")
		}
		return source.NewFileRepository("manifests", *path)
	case "git":
		if *path == "" {
			return nil, errors.New("path is required")
		}
		if *URL == "" {
			return nil, errors.New("url is required")
		}
		return source.NewGitRepository("manifests", *URL, *path, *branch, nil)
	case "web":
		if *URL == "" {
			return nil, errors.New("url is required")
		}
		return source.NewWebRepository("manifests", *URL)
	case "s3":
		if *bucket == "" || *object == "" {
			return nil, errors.New("bucket and object are required")
		}
		return source.NewAwsS3Repository("manifests", *bucket, *object, *region), nil
	case "gcs":
		if *bucket == "" || *object == "" {
			return nil, errors.New("bucket and object are required")
		}
		return source.NewGcpStorageRepository("manifests", *bucket, *object), nil
	default:
		return nil, errors.New("unknown repository type " + *repoType)
	}
}

func main() {
	flag.Parse()
	ctx := context.Background()

	registry := manifest.NewRegistry()
	smbManifest, err := smb.Manifest()
	if err != nil {
		logrus.WithError(err).Fatal("error loading embedded smb manifest")
	}
	if err := registry.Add(smbManifest); err != nil {
		logrus.WithError(err).Fatal("error registering embedded smb manifest")
	}
	if *providersDir != "" {
		if err := registry.LoadDir(*providersDir); err != nil {
			logrus.WithError(err).Fatal("error loading providers directory")
		}
	}

	store := config.NewStore(*storagePath)
	controller, err := config.NewController(store, registry)
	if err != nil {
		logrus.WithError(err).Fatal("error loading settings store")
	}
	defer func() {
		if err := controller.Close(); err != nil {
			logrus.WithError(err).Error("error closing settings store")
		}
	}()

	var repositories []source.Repository
	repository, err := newRepository()
	if err != nil {
		logrus.WithError(err).Fatal("error creating repository")
	}
	if repository != nil {
		repositories = append(repositories, repository)
	}

	srv := server.NewServer(ctx, registry, controller, repositories, *refreshInterval)
	defer srv.Stop()
	srv.AuthKey = *authKey

	host := providers.NewHost(registry, controller)
	if err := host.Start(ctx); err != nil {
		logrus.WithError(err).Fatal("error starting provider host")
	}
	defer host.Stop()

	srv.Start(*addr)
}
