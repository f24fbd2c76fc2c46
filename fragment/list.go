package fragment

import (
	"context"
	"path"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/arraystore/blobstore"
	"github.com/hupe1980/arraystore/resource"
	"github.com/hupe1980/arraystore/schema"
)

// List loads the metadata of every fragment of arrayURI, oldest first.
func List(ctx context.Context, store blobstore.BlobStore, arrayURI string, rc *resource.Controller) ([]*Metadata, error) {
	keys, err := store.List(ctx, Dir(arrayURI))
	if err != nil {
		return nil, err
	}
	keys = slices.DeleteFunc(keys, func(k string) bool {
		return !strings.HasPrefix(path.Base(k), schema.SpecialNamePrefix)
	})

	ms := make([]*Metadata, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(rc.Workers(), 4))
	for i, key := range keys {
		g.Go(func() error {
			m, err := LoadMetadata(gctx, store, key, rc)
			if err != nil {
				return err
			}
			ms[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	SortMetadata(ms)
	return ms, nil
}
