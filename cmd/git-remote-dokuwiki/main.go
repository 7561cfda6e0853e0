// Command git-remote-dokuwiki is the git remote-helper entry point of
// spec.md §6.6: `git fetch`/`git push` against a `dokuwiki::` URL invoke
// this binary as `<prog> <remote-name> <url>`, talking the line protocol
// of component E over stdin/stdout.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/diag"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/helper"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/localvcs"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/marker"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/wiki"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/wikiurl"
)

// version is stamped at link time in a release build; a development
// build falls back to this placeholder.
var version = "dev"

const (
	mainRef   = "refs/heads/main"
	originRef = "refs/dokuwiki/origin/heads/main"
)

func main() {
	if v, ok := os.LookupEnv("DOKUWIKI_VERBOSITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			diag.Raise(diag.Level(n))
		}
	}

	var showVersion bool
	root := &cobra.Command{
		Use:           "git-remote-dokuwiki <remote-name> <url>",
		Short:         "git remote helper bridging a git history to a DokuWiki instance",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Printf("git-remote-dokuwiki %s\n", version)
				return nil
			}
			return run(args[0], args[1])
		},
	}
	root.Flags().BoolVarP(&showVersion, "version", "V", false, "print the version and exit")

	if err := root.Execute(); err != nil {
		diag.Fatalf("%v", err)
	}
}

func run(remoteName, rawURL string) error {
	_ = remoteName // unused: the bridge has exactly one upstream ref, named by cfg.MainRef, not by remoteName

	local := localvcs.Facade{}
	gitDir, err := local.GitDir()
	if err != nil {
		return diag.Wrap(diag.NotInRepo, "run this from inside a git repository", err, "resolving git directory")
	}

	parsed := wikiurl.Parse(rawURL)
	if parsed.Host == "" {
		return diag.New(diag.BadURL, "use dokuwiki::host[/ns][?ext=md]", "could not parse remote URL %q", rawURL)
	}

	cookiePath := os.Getenv("DOKUWIKI_COOKIE_FILE")
	if cookiePath == "" {
		cookiePath = filepath.Join(gitDir, "dokuwiki-cookies.json")
	}

	client, err := wiki.New(wiki.Options{
		BaseURL:    parsed.BaseURL(),
		User:       parsed.User,
		CookiePath: cookiePath,
	})
	if err != nil {
		return diag.Wrap(diag.Internal, "", err, "constructing wiki client")
	}

	markers := marker.New(local)

	cfg := helper.Config{
		NS:        parsed.Namespace,
		Ext:       extOrDefault(parsed.Extension),
		WikiHost:  client.Host(),
		MainRef:   mainRef,
		OriginRef: originRef,
		DestRef:   originRef,
	}

	h := helper.New(client, local, markers, cfg, os.Stdin, os.Stdout)
	if err := h.Run(); err != nil {
		return err
	}
	return nil
}

func extOrDefault(ext string) string {
	if ext == "" {
		return "md"
	}
	return ext
}
