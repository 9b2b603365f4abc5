// Command sleuth audits multi-architecture container images in a
// Cloudsmith repository by correlating the Docker Registry v2 API with
// the package-management API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	cli "github.com/jawher/mow.cli"
	"github.com/sirupsen/logrus"

	"github.com/cloudsmith-io/support-engineering/pkg/audit"
	"github.com/cloudsmith-io/support-engineering/pkg/auth"
	"github.com/cloudsmith-io/support-engineering/pkg/packages"
	"github.com/cloudsmith-io/support-engineering/pkg/registry"
	"github.com/cloudsmith-io/support-engineering/pkg/report"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var log = logrus.New()

func main() {
	app := cli.App("sleuth", "Audit multi-arch container images in a Cloudsmith registry")
	app.Spec = "REGISTRY WORKSPACE REPO [IMAGE] [--untagged] [--untagged-delete] [--detailed]"
	app.Version("v version", fmt.Sprintf("sleuth %s, commit %s, built at %s", version, commit, date))

	ctx := newInterruptableContext()

	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	var (
		registryBase = app.StringArg("REGISTRY", "", "Registry base URL, e.g. https://docker.cloudsmith.io")
		workspace    = app.StringArg("WORKSPACE", "", "Workspace (organization or user)")
		repo         = app.StringArg("REPO", "", "Repository name")
		image        = app.StringArg("IMAGE", "", "Image name (omit to scan every image in the catalog)")

		untagged = app.BoolOpt("untagged", false,
			"Find untagged manifest lists instead of auditing tags")
		untaggedDelete = app.BoolOpt("untagged-delete", false,
			"Find and delete untagged manifest lists. Deletion is irreversible")
		detailed = app.BoolOpt("detailed", false,
			"Expand every child digest row rather than summarizing")
	)

	app.Action = func() {
		httpClient := auth.Client(ctx)

		reg := registry.New(httpClient, registry.Path{
			Base:      *registryBase,
			Workspace: *workspace,
			Repo:      *repo,
		})
		auditor := &audit.Auditor{
			Registry: reg,
			Packages: packages.New(httpClient, *workspace, *repo),
		}

		images := []string{*image}
		catalogScan := *image == ""

		if catalogScan {
			log.Infof("fetching catalog for %s", reg.Path())

			names, err := reg.Catalog(ctx)
			if err != nil {
				log.Errorf("failed to fetch catalog: %v", err)
				cli.Exit(1)
			}
			if len(names) == 0 {
				log.Error("no images found in catalog")
				cli.Exit(1)
			}
			images = names
		}

		ok := true
		for _, img := range images {
			fmt.Printf("\nDocker image: %s/%s\n", reg.Path(), img)

			var done bool
			if *untagged || *untaggedDelete {
				done = auditUntagged(ctx, auditor, img, *untaggedDelete, *detailed)
			} else {
				done = auditTags(ctx, auditor, reg, img, *detailed)
			}

			// in catalog-scan mode an empty or broken image only skips
			// that image
			if !done && !catalogScan {
				ok = false
			}
		}

		if !ok {
			cli.Exit(1)
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("error running command: %v", err)
	}
}

func auditTags(ctx context.Context, auditor *audit.Auditor, reg *registry.Client, image string, detailed bool) bool {
	tags, err := reg.Tags(ctx, image)
	if err != nil {
		log.Errorf("failed to list tags for %s: %v", image, err)
		return false
	}

	if len(tags) == 0 {
		log.Warnf("no tags found for %s", image)
		return false
	}

	log.Infof("found matching tags: %d", len(tags))

	table := report.NewTable(os.Stdout, fmt.Sprintf("Image analysis: %s", image))
	for _, res := range auditor.ResolveTags(ctx, image, tags) {
		if res.Err != nil {
			log.Warnf("skipping tag %s: %v", res.Tag, res.Err)
			continue
		}
		table.WriteTag(res.Report, detailed)
	}

	if err := table.Flush(); err != nil {
		log.Errorf("failed to render report: %v", err)
		return false
	}

	return true
}

func auditUntagged(ctx context.Context, auditor *audit.Auditor, image string, del, detailed bool) bool {
	log.Infof("searching for untagged manifest lists in %s", image)

	lists, err := auditor.FindUntagged(ctx, image, detailed)
	if err != nil {
		log.Errorf("failed to scan %s: %v", image, err)
		return false
	}

	if len(lists) == 0 {
		log.Infof("no untagged manifest lists found for %s", image)
		return true
	}

	table := report.NewTable(os.Stdout, "Untagged manifest lists")
	for _, l := range lists {
		table.WriteUntagged(l, detailed)
	}

	if err := table.Flush(); err != nil {
		log.Errorf("failed to render report: %v", err)
		return false
	}

	if del {
		log.Warnf("deleting %d untagged packages", len(lists))

		failures := auditor.DeleteUntagged(ctx, lists)
		for _, f := range failures {
			log.Errorf("failed to delete %s: %v", f.Slug, f.Err)
		}

		log.Infof("deleted %d of %d untagged packages", len(lists)-len(failures), len(lists))
	}

	return true
}

func newInterruptableContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		signal.Stop(c)
		cancel()
	}()

	return ctx
}
