package directory

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"testing"

	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/dbtest"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/ingest"
	"github.com/anoixa/image-resizer/internal/resizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 2, 2))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func setupService(t *testing.T) (*Service, database.Provider) {
	p := dbtest.NewProvider(t)
	pipeline := ingest.NewPipeline(p, resizer.New(2), []models.TargetSize{models.SizeSmall}, nil)
	s := NewService(p, pipeline)
	_, err := s.EnsureRoot(context.Background())
	require.NoError(t, err)
	return s, p
}

func mustGet(t *testing.T, s *Service, key string) *models.Directory {
	t.Helper()
	d, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, d, key)
	return d
}

func count(t *testing.T, p database.Provider, model interface{}) int64 {
	var n int64
	require.NoError(t, p.DB().Model(model).Count(&n).Error)
	return n
}

func TestCreateSubtreeCounters(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	root := mustGet(t, s, models.RootDirectoryKey)

	dto := models.DirectoryDTO{
		Name:         "Holiday",
		DirectoryKey: "holiday",
		ImageCount:   42, // 忽略
		Images: []models.ImageDTO{
			{ImageKey: "h1", Base64: pngBase64(t)},
			{ImageKey: "h2", Base64: "broken"},
		},
		SubDirectories: []models.DirectoryDTO{{Name: "Day 1", DirectoryKey: "day1"}},
	}
	created, err := s.CreateSubtree(ctx, dto, "sess", &root.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, created.ImageCount)
	assert.Equal(t, 1, created.SubDirectoriesCount)
	assert.Equal(t, 1, mustGet(t, s, models.RootDirectoryKey).SubDirectoriesCount)

	parent, err := s.GetParent(ctx, "day1")
	require.NoError(t, err)
	assert.Equal(t, "holiday", parent.DirectoryKey)

	children, err := s.ListChildren(ctx, models.RootDirectoryKey)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "holiday", children[0].DirectoryKey)
}

func TestCreateSubtreeWithoutParent(t *testing.T) {
	s, _ := setupService(t)
	created, err := s.CreateSubtree(context.Background(), models.DirectoryDTO{DirectoryKey: "loose"}, "s", nil)
	require.NoError(t, err)
	assert.Nil(t, created.ParentDirectoryID)
	assert.Equal(t, 0, mustGet(t, s, models.RootDirectoryKey).SubDirectoriesCount)
}

func TestIngestDirectoryDefaultsToRoot(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	created, err := s.IngestDirectory(ctx, models.DirectoryDTO{DirectoryKey: "a", Name: "A"}, "s", "")
	require.NoError(t, err)
	root := mustGet(t, s, models.RootDirectoryKey)
	require.NotNil(t, created.ParentDirectoryID)
	assert.Equal(t, root.ID, *created.ParentDirectoryID)

	_, err = s.IngestDirectory(ctx, models.DirectoryDTO{DirectoryKey: "b"}, "s", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, mustGet(t, s, "a").SubDirectoriesCount)

	_, err = s.IngestDirectory(ctx, models.DirectoryDTO{DirectoryKey: "c"}, "s", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.IngestDirectory(ctx, models.DirectoryDTO{DirectoryKey: ""}, "s", "")
	assert.ErrorIs(t, err, ErrInvalidDirectory)

	_, err = s.IngestDirectory(ctx, models.DirectoryDTO{DirectoryKey: models.RootDirectoryKey}, "s", "")
	assert.ErrorIs(t, err, ErrInvalidDirectory)
}

func TestDirectoryImagesRequireImageKey(t *testing.T) {
	s, p := setupService(t)
	ctx := context.Background()

	keyless := models.DirectoryDTO{
		DirectoryKey: "a",
		SubDirectories: []models.DirectoryDTO{{
			DirectoryKey: "b",
			Images:       []models.ImageDTO{{Name: "no key", Base64: pngBase64(t)}},
		}},
	}

	_, err := s.IngestDirectory(ctx, keyless, "s", "")
	assert.ErrorIs(t, err, ErrInvalidDirectory)

	_, err = s.Upsert(ctx, keyless, "s", "")
	assert.ErrorIs(t, err, ErrInvalidDirectory)

	_, err = s.CreateSubtree(ctx, keyless, "s", nil)
	assert.ErrorIs(t, err, ErrInvalidDirectory)

	assert.Zero(t, count(t, p, &models.OriginalImage{}))
	assert.Equal(t, int64(1), count(t, p, &models.Directory{}))
}

func TestCreateSubtreeDuplicateKeyRollsBack(t *testing.T) {
	s, p := setupService(t)
	ctx := context.Background()

	_, err := s.IngestDirectory(ctx, models.DirectoryDTO{DirectoryKey: "dup"}, "s", "")
	require.NoError(t, err)

	dto := models.DirectoryDTO{
		DirectoryKey:   "fresh",
		Images:         []models.ImageDTO{{ImageKey: "i", Base64: pngBase64(t)}},
		SubDirectories: []models.DirectoryDTO{{DirectoryKey: "dup"}},
	}
	_, err = s.IngestDirectory(ctx, dto, "s", "")
	require.Error(t, err)

	missing, err := s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Zero(t, count(t, p, &models.OriginalImage{}))
	assert.Equal(t, 1, mustGet(t, s, models.RootDirectoryKey).SubDirectoriesCount)
}

func TestUpsertReplacesSubtree(t *testing.T) {
	s, p := setupService(t)
	ctx := context.Background()

	_, err := s.IngestDirectory(ctx, models.DirectoryDTO{
		Name:         "old",
		DirectoryKey: "d",
		Images:       []models.ImageDTO{{ImageKey: "x1", Base64: pngBase64(t)}, {ImageKey: "x2", Base64: pngBase64(t)}},
		SubDirectories: []models.DirectoryDTO{
			{DirectoryKey: "d-a", Images: []models.ImageDTO{{ImageKey: "x3", Base64: pngBase64(t)}}},
			{DirectoryKey: "d-b", SubDirectories: []models.DirectoryDTO{{DirectoryKey: "d-b-1"}}},
		},
	}, "s1", "")
	require.NoError(t, err)
	before := mustGet(t, s, "d")

	updated, err := s.Upsert(ctx, models.DirectoryDTO{
		Name:                "new",
		DirectoryKey:        "d",
		ImageCount:          99,
		SubDirectoriesCount: 99,
		Images:              []models.ImageDTO{{ImageKey: "y1", Base64: pngBase64(t)}},
		SubDirectories:      []models.DirectoryDTO{{DirectoryKey: "d-c"}},
	}, "s2", "")
	require.NoError(t, err)

	assert.Equal(t, before.ID, updated.ID)
	assert.Equal(t, before.ParentDirectoryID, updated.ParentDirectoryID)
	assert.Equal(t, "new", updated.Name)
	assert.Equal(t, "s2", updated.SessionKey)
	assert.Equal(t, 1, updated.ImageCount)
	assert.Equal(t, 1, updated.SubDirectoriesCount)

	for _, gone := range []string{"d-a", "d-b", "d-b-1"} {
		d, err := s.Get(ctx, gone)
		require.NoError(t, err)
		assert.Nil(t, d, gone)
	}
	mustGet(t, s, "d-c")

	// 只剩 y1，派生图随之删除
	assert.Equal(t, int64(1), count(t, p, &models.OriginalImage{}))
	assert.Equal(t, int64(1), count(t, p, &models.DerivedImage{}))
	assert.Equal(t, 1, mustGet(t, s, models.RootDirectoryKey).SubDirectoriesCount)
}

func TestUpsertCreatesUnderParent(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	created, err := s.Upsert(ctx, models.DirectoryDTO{DirectoryKey: "n", Name: "N"}, "s", "")
	require.NoError(t, err)
	root := mustGet(t, s, models.RootDirectoryKey)
	require.NotNil(t, created.ParentDirectoryID)
	assert.Equal(t, root.ID, *created.ParentDirectoryID)
	assert.Equal(t, 1, root.SubDirectoriesCount)

	child, err := s.Upsert(ctx, models.DirectoryDTO{DirectoryKey: "n2"}, "s", "n")
	require.NoError(t, err)
	assert.Equal(t, created.ID, *child.ParentDirectoryID)
}

func TestDeleteRemovesSubtree(t *testing.T) {
	s, p := setupService(t)
	ctx := context.Background()

	_, err := s.IngestDirectory(ctx, models.DirectoryDTO{
		DirectoryKey: "top",
		Images:       []models.ImageDTO{{ImageKey: "t1", Base64: pngBase64(t)}},
		SubDirectories: []models.DirectoryDTO{
			{DirectoryKey: "mid", Images: []models.ImageDTO{{ImageKey: "m1", Base64: pngBase64(t)}}},
		},
	}, "s", "")
	require.NoError(t, err)
	assert.Equal(t, 1, mustGet(t, s, models.RootDirectoryKey).SubDirectoriesCount)

	require.NoError(t, s.Delete(ctx, "top"))

	assert.Equal(t, 0, mustGet(t, s, models.RootDirectoryKey).SubDirectoriesCount)
	assert.Equal(t, int64(1), count(t, p, &models.Directory{}))
	assert.Zero(t, count(t, p, &models.OriginalImage{}))
	assert.Zero(t, count(t, p, &models.DerivedImage{}))

	assert.ErrorIs(t, s.Delete(ctx, "top"), ErrNotFound)
}

func TestDeleteRootIsProtected(t *testing.T) {
	s, _ := setupService(t)
	err := s.Delete(context.Background(), models.RootDirectoryKey)
	assert.ErrorIs(t, err, ErrProtectedDirectory)
	mustGet(t, s, models.RootDirectoryKey)
}

func TestDeleteImageDecrementsParent(t *testing.T) {
	s, p := setupService(t)
	ctx := context.Background()

	_, err := s.IngestDirectory(ctx, models.DirectoryDTO{
		DirectoryKey: "d",
		Images:       []models.ImageDTO{{ImageKey: "a", Base64: pngBase64(t)}, {ImageKey: "b", Base64: pngBase64(t)}},
	}, "s", "")
	require.NoError(t, err)
	assert.Equal(t, 2, mustGet(t, s, "d").ImageCount)

	n, err := s.DeleteImage(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, mustGet(t, s, "d").ImageCount)
	assert.Equal(t, int64(1), count(t, p, &models.DerivedImage{}))

	n, err = s.DeleteImage(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTree(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	_, err := s.IngestDirectory(ctx, models.DirectoryDTO{
		Name:           "A",
		DirectoryKey:   "a",
		Images:         []models.ImageDTO{{ImageKey: "i", Name: "img", Base64: pngBase64(t)}},
		SubDirectories: []models.DirectoryDTO{{Name: "B", DirectoryKey: "b"}},
	}, "s", "")
	require.NoError(t, err)

	tree, err := s.Tree(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, tree.ImageCount)
	require.Len(t, tree.Images, 1)
	assert.Equal(t, 2, tree.Images[0].Width)
	assert.Empty(t, tree.Images[0].Base64)
	require.Len(t, tree.SubDirectories, 1)
	assert.Equal(t, "b", tree.SubDirectories[0].DirectoryKey)

	_, err = s.Tree(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
