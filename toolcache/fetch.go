package toolcache

import (
	"context"
	"os"

	"github.com/hashicorp/go-getter"

	"github.com/implicit-corpus/collector/errors"
)

// GetterFetcher downloads single files with go-getter. Any source go-getter
// detects works (http(s), s3::, gcs::, local paths). Local files are copied,
// never symlinked into the cache.
type GetterFetcher struct{}

// Fetch downloads src into the file dst
func (GetterFetcher) Fetch(ctx context.Context, dst, src string) error {
	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	getters := make(map[string]getter.Getter, len(getter.Getters))
	for k, v := range getter.Getters {
		getters[k] = v
	}
	getters["file"] = &getter.FileGetter{Copy: true}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Pwd:     pwd,
		Mode:    getter.ClientModeFile,
		Getters: getters,
	}
	if err := client.Get(); err != nil {
		return errors.Wrapf(err, "fetch %s", src)
	}
	return nil
}
