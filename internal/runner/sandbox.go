package runner

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// sandboxEnvVar names the directory workers relocate into. It mirrors
// BUILDDIR from the Yocto/OpenEmbedded self-test harness: a root directory
// holding configuration and cache state that every worker needs its own
// copy of so that concurrent runs don't trample each other's state.
const sandboxEnvVar = "PGCOV_BUILDDIR"

// selftestLayerDir is the auxiliary tree copied alongside "conf" and
// "cache", analogous to the upstream harness's "meta-selftest" layer: a
// set of test-only recipes/classes that must exist under every worker's
// own BUILDDIR-relative path rather than be shared across workers.
const selftestLayerDir = "layer"

// bblayersConfPath is the one configuration file whose layer path the
// upstream harness rewrites post-copy (its "sed bblayers.conf" step),
// relative to the sandbox root.
const bblayersConfPath = "conf/bblayers.conf"

// Sandbox is a worker-private scratch directory carved out of the shared
// build root named by PGCOV_BUILDDIR, analogous to the "-st-<pid>"
// directories the original harness creates per worker.
type Sandbox struct {
	Root    string // e.g. "/srv/pgcov/build-st-41223"
	BaseDir string // original value of PGCOV_BUILDDIR, empty if unset
}

// NewSandbox relocates the calling worker process into a private scratch
// directory when PGCOV_BUILDDIR is set: it copies the "conf", "cache",
// and "layer" subdirectories, rewrites any environment variable that
// references the base directory to point at the new one instead,
// snapshots the copied layer under version control, rewrites the copied
// bblayers.conf's layer-path reference, and chdirs the calling process
// into the new root. It returns nil, nil when no sandboxing is
// configured, mirroring the upstream harness's 'if BUILDDIR in
// os.environ' guard.
//
// On error, NewSandbox returns the partially built Sandbox alongside the
// error rather than discarding it, so the caller can still run Cleanup
// on whatever was created before the failure.
func NewSandbox(pid int) (*Sandbox, error) {
	base, ok := os.LookupEnv(sandboxEnvVar)
	if !ok || base == "" {
		return nil, nil
	}

	root := fmt.Sprintf("%s-st-%d", base, pid)
	sb := &Sandbox{Root: root, BaseDir: base}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return sb, fmt.Errorf("sandbox: create root %s: %w", root, err)
	}

	for _, sub := range []string{"conf", "cache"} {
		src := filepath.Join(base, sub)
		if _, err := os.Stat(src); err != nil {
			continue // optional; not every base dir carries both
		}
		if err := copyTree(src, filepath.Join(root, sub)); err != nil {
			return sb, fmt.Errorf("sandbox: copy %s: %w", sub, err)
		}
	}

	oldLayer := filepath.Join(base, selftestLayerDir)
	newLayer := filepath.Join(root, selftestLayerDir)
	if _, err := os.Stat(oldLayer); err == nil {
		if err := copyTree(oldLayer, newLayer); err != nil {
			return sb, fmt.Errorf("sandbox: copy selftest layer: %w", err)
		}
		_ = initGitSnapshot(newLayer) // best-effort, same as upstream's "git init; git add *; git commit"
		if err := rewriteBBLayersConf(root, oldLayer, newLayer); err != nil {
			return sb, fmt.Errorf("sandbox: rewrite bblayers.conf: %w", err)
		}
	}

	for _, kv := range os.Environ() {
		name, val, found := strings.Cut(kv, "=")
		if !found || !strings.Contains(val, base) {
			continue
		}
		os.Setenv(name, strings.ReplaceAll(val, base, root))
	}

	if err := os.Chdir(root); err != nil {
		return sb, fmt.Errorf("sandbox: chdir %s: %w", root, err)
	}

	return sb, nil
}

// rewriteBBLayersConf patches the sandbox's copied bblayers.conf in
// place, replacing every occurrence of the selftest layer's old path
// with its new, sandbox-relative one. Matches the upstream harness's
// "sed bblayers.conf -e 's#oldselftestdir#newselftestdir#g'" step,
// which exists because bitbake-layers add/remove would otherwise
// require a full recipe parse per worker. Missing file is not an
// error: not every BUILDDIR carries a selftest layer to begin with.
func rewriteBBLayersConf(root, oldLayer, newLayer string) error {
	path := filepath.Join(root, bblayersConfPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	rewritten := strings.ReplaceAll(string(data), oldLayer, newLayer)
	return os.WriteFile(path, []byte(rewritten), 0o644)
}

// initGitSnapshot records the sandbox's initial state so that a failing
// test's on-disk side effects can later be diffed against a known-good
// baseline. Failure here is non-fatal; it mirrors the upstream shell
// pipeline, which is itself best-effort.
func initGitSnapshot(dir string) error {
	for _, args := range [][]string{
		{"init"},
		{"add", "-A"},
		{"commit", "-m", "initial", "--allow-empty"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if err := cmd.Run(); err != nil {
			return err
		}
	}
	return nil
}

// Rewrite patches a ConfigPaths map in place, replacing every occurrence
// of the sandbox's base directory with its private root. This is the Go
// analogue of the config_paths substring rewrite the upstream harness
// performs before handing tests to a relocated worker.
func (sb *Sandbox) Rewrite(paths map[string]string) {
	if sb == nil {
		return
	}
	for k, v := range paths {
		if strings.Contains(v, sb.BaseDir) {
			paths[k] = strings.ReplaceAll(v, sb.BaseDir, sb.Root)
		}
	}
}

// Cleanup removes the sandbox's scratch directory. It first waits (up to
// 5 seconds) for a lock sentinel to clear, then prefers a fast external
// deletion helper if one is installed, falling back to a plain recursive
// remove.
//
// The "bitbake.lock" sentinel name is kept verbatim: it is what the
// upstream build system actually writes, and a worker that inherited a
// real OpenEmbedded BUILDDIR will still be holding one.
func (sb *Sandbox) Cleanup() error {
	if sb == nil || sb.Root == "" {
		return nil
	}

	lockPath := filepath.Join(sb.Root, "bitbake.lock")
	for delay := 5; delay > 0; delay-- {
		if _, err := os.Stat(lockPath); os.IsNotExist(err) {
			break
		}
		time.Sleep(time.Second)
	}

	if helper, err := exec.LookPath(clobberHelperPath()); err == nil {
		if exec.Command(helper, sb.Root).Run() == nil {
			return nil
		}
	}

	return os.RemoveAll(sb.Root)
}

// clobberHelperPath returns the location of an optional fast-delete
// helper, analogous to ~/yocto-autobuilder-helper/janitor/clobberdir.
func clobberHelperPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pgcov", "janitor", "clobberdir")
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
