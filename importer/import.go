package importer

import (
	"context"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/project"
	"github.com/implicit-corpus/collector/revision"
)

// sourceKind selects how a source is acquired
type sourceKind int

const (
	kindLocal  sourceKind = iota // directory on disk, copied
	kindGit                      // repository, cloned with go-git
	kindGetter                   // archive or object store, fetched with go-getter
)

func (k sourceKind) String() string {
	switch k {
	case kindLocal:
		return "local"
	case kindGit:
		return "git"
	default:
		return "getter"
	}
}

// Importer places projects under the projects directory and records their
// metadata
type Importer struct {
	projectsDir string
	capture     *project.Capturer
	logger      *zap.SugaredLogger
}

// New creates an importer writing into projectsDir
func New(projectsDir string, capture *project.Capturer, log *zap.SugaredLogger) *Importer {
	return &Importer{projectsDir: projectsDir, capture: capture, logger: logger.OrNop(log)}
}

// Dir returns where the project named name lives
func (im *Importer) Dir(name string) string {
	return filepath.Join(im.projectsDir, name)
}

// Import acquires src (reusing an existing directory) and writes its
// metadata record
func (im *Importer) Import(ctx context.Context, src Source) (project.Metadata, error) {
	dir, _, err := im.Acquire(ctx, src)
	if err != nil {
		return project.Metadata{}, err
	}
	return im.Describe(ctx, dir)
}

// Describe captures the metadata of an already acquired project
func (im *Importer) Describe(ctx context.Context, dir string) (project.Metadata, error) {
	meta, err := im.capture.Capture(ctx, dir)
	if err != nil {
		return meta, errors.Wrapf(err, "capture metadata of %s", dir)
	}
	if err := project.WriteMetadata(dir, meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// Acquire copies, clones or downloads src into the projects directory.
// An existing target directory is reused untouched. A failed acquisition
// leaves no directory behind.
func (im *Importer) Acquire(ctx context.Context, src Source) (dir string, reused bool, err error) {
	if src.Name == "" {
		src.Name = RepoName(src.URL)
	}
	dir = im.Dir(src.Name)
	log := im.logger.With(logger.FieldProject, src.Name, logger.FieldURL, src.URL)

	if _, err := os.Stat(dir); err == nil {
		log.Infow("Project directory exists, reusing", logger.FieldDir, dir)
		return dir, true, nil
	}
	if err := os.MkdirAll(im.projectsDir, 0o755); err != nil {
		return "", false, errors.Wrapf(err, "create %s", im.projectsDir)
	}

	kind, resolved, ref, err := classify(src.URL)
	if err != nil {
		return "", false, err
	}
	if src.Ref == "" {
		src.Ref = ref
	}

	log.Infow("Importing project", "kind", kind.String(), "ref", src.Ref)

	switch kind {
	case kindLocal:
		err = copyTree(ctx, resolved, dir)
	case kindGit:
		err = clone(ctx, resolved, dir, src.Ref)
	default:
		err = fetch(ctx, resolved, dir)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", false, errors.Wrapf(err, "import %s from %s", src.Name, src.URL)
	}

	if kind != kindGit && src.Ref != "" {
		if err := checkoutRef(ctx, dir, src.Ref); err != nil {
			_ = os.RemoveAll(dir)
			return "", false, err
		}
	}
	return dir, false, nil
}

// classify runs go-getter detection on raw and picks an acquisition
// strategy. A ref query parameter is split off and returned.
func classify(raw string) (sourceKind, string, string, error) {
	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(raw, pwd, getter.Detectors)
	if err != nil {
		return 0, "", "", errors.Wrapf(errors.ErrInvalidRequest, "detect source type of %q: %s", raw, err)
	}

	forcedGit := strings.HasPrefix(detected, "git::")
	detected = strings.TrimPrefix(detected, "git::")

	u, err := url.Parse(detected)
	if err != nil {
		return 0, "", "", errors.Wrapf(errors.ErrInvalidRequest, "parse %q: %s", detected, err)
	}

	var ref string
	if q := u.Query(); q.Get("ref") != "" {
		ref = q.Get("ref")
		q.Del("ref")
		u.RawQuery = q.Encode()
		detected = u.String()
	}

	switch {
	case forcedGit:
		return kindGit, detected, ref, nil
	case u.Scheme == "file" || u.Scheme == "":
		path := u.Path
		if u.Scheme == "" {
			path = raw
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return kindLocal, path, ref, nil
		}
		return kindGetter, detected, ref, nil
	case u.Scheme == "ssh" || u.Scheme == "git":
		return kindGit, detected, ref, nil
	case (u.Scheme == "http" || u.Scheme == "https") && strings.HasSuffix(u.Path, ".git"):
		return kindGit, detected, ref, nil
	default:
		return kindGetter, detected, ref, nil
	}
}

func clone(ctx context.Context, src, dst, ref string) error {
	_, err := git.PlainCloneContext(ctx, dst, false, &git.CloneOptions{
		URL:  src,
		Tags: git.AllTags,
	})
	if err != nil {
		return errors.Wrap(err, "clone")
	}
	if ref == "" {
		return nil
	}
	return checkoutRef(ctx, dst, ref)
}

func checkoutRef(ctx context.Context, dir, ref string) error {
	wt, err := revision.OpenWorktree(dir)
	if err != nil {
		return err
	}
	return wt.Checkout(ctx, ref)
}

func fetch(ctx context.Context, src, dst string) error {
	client := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Mode:    getter.ClientModeDir,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		return errors.Wrap(err, "fetch")
	}
	return nil
}

// copyTree copies the directory src to dst, recreating symlinks and
// keeping file modes
func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
