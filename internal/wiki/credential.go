package wiki

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/diag"
)

// CredentialProvider resolves a username/password pair for host, given an
// optional hint (the URL user, if any). It implements spec.md §6.2's
// priority: env vars first, then the host VCS's credential helper.
type CredentialProvider func(host, userHint string) (user, pass string, err error)

// EnvAndGitCredential is the default provider: DOKUWIKI_PASSWORD (with
// DOKUWIKI_USER, the URL user, or "admin") takes priority over invoking
// `git credential fill`. The literal fallback "admin" and the exact
// precedence order come from original_source/src/dokuwiki.rs's
// get_credentials.
func EnvAndGitCredential(host, userHint string) (string, string, error) {
	if pass, ok := os.LookupEnv("DOKUWIKI_PASSWORD"); ok {
		user := os.Getenv("DOKUWIKI_USER")
		if user == "" {
			user = userHint
		}
		if user == "" {
			user = "admin"
		}
		diag.Info("using credentials from environment for %s", host)
		return user, pass, nil
	}
	return gitCredentialFill(host, userHint)
}

// gitCredentialFill shells out to `git credential fill`, speaking the
// line protocol of spec.md §6.2: "protocol=https\nhost=<h>\n[username=<u>\n]\n",
// expecting "username="/"password=" lines back.
func gitCredentialFill(host, userHint string) (string, string, error) {
	var input strings.Builder
	fmt.Fprintf(&input, "protocol=https\nhost=%s\n", host)
	if userHint != "" {
		fmt.Fprintf(&input, "username=%s\n", userHint)
	}
	input.WriteString("\n")

	cmd := exec.Command("git", "credential", "fill")
	cmd.Stdin = strings.NewReader(input.String())
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", "", fmt.Errorf("git credential fill failed for %s: set DOKUWIKI_PASSWORD or configure git credentials: %w", host, err)
	}

	var user, pass string
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "username="); ok {
			user = v
		} else if v, ok := strings.CutPrefix(line, "password="); ok {
			pass = v
		}
	}
	if user == "" || pass == "" {
		return "", "", fmt.Errorf("git credential did not provide username/password; set DOKUWIKI_PASSWORD")
	}
	return user, pass, nil
}
