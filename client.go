package docsync

import (
	"context"
	"errors"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/docsync/remote"
)

// Client is the documents API seen through the cache: reads are served from
// the Store, writes go through the Coordinator.
type Client struct {
	api   remote.API
	store *Store
	coord *Coordinator
	log   Logger
	now   func() time.Time

	folders   *Query[[]remote.Folder]
	documents *Query[[]remote.Document]
	document  *Query[remote.Document]
	search    *Query[[]remote.SearchResult]
	history   *Query[[]HistoryEntry]
}

func (c *Client) Store() *Store              { return c.store }
func (c *Client) Coordinator() *Coordinator { return c.coord }

func (c *Client) Folders(ctx context.Context) ([]remote.Folder, error) {
	return c.folders.Ensure(ctx, FoldersKey(), c.api.Folders)
}

// Documents lists a folder. An empty folderID yields nil without a fetch.
func (c *Client) Documents(ctx context.Context, folderID string) ([]remote.Document, error) {
	docs, err := c.documents.Ensure(ctx, DocumentsKey(folderID), func(ctx context.Context) ([]remote.Document, error) {
		return c.api.DocumentsByFolder(ctx, folderID)
	})
	if errors.Is(err, ErrDisabled) {
		return nil, nil
	}
	return docs, err
}

func (c *Client) Document(ctx context.Context, id string) (remote.Document, error) {
	return c.document.Ensure(ctx, DocumentKey(id), func(ctx context.Context) (remote.Document, error) {
		return c.api.Document(ctx, id)
	})
}

// Search runs a full-text query. An empty query yields nil without a fetch.
func (c *Client) Search(ctx context.Context, q string) ([]remote.SearchResult, error) {
	res, err := c.search.Ensure(ctx, SearchKey(q), func(ctx context.Context) ([]remote.SearchResult, error) {
		return c.api.Search(ctx, q)
	})
	if errors.Is(err, ErrDisabled) {
		return nil, nil
	}
	return res, err
}

// History returns the recency log, normalized as it is fetched.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	return c.history.Ensure(ctx, HistoryKey(), func(ctx context.Context) ([]HistoryEntry, error) {
		h, err := c.api.History(ctx)
		if err != nil {
			return nil, err
		}
		return Normalize(h), nil
	})
}

// Warm loads the folder list and the recency log concurrently.
func (c *Client) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := c.Folders(ctx)
		return err
	})
	g.Go(func() error {
		_, err := c.History(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		c.log.Warn("warm failed", Fields{"err": err})
		return err
	}
	return nil
}

func (c *Client) CreateFolder(ctx context.Context, name string) (remote.Folder, error) {
	var created remote.Folder
	err := c.coord.Run(ctx, MutationSpec{
		Kind: KindCreateFolder,
		Call: func(ctx context.Context) error {
			f, err := c.api.CreateFolder(ctx, name)
			created = f
			return err
		},
	})
	if err != nil {
		return remote.Folder{}, err
	}
	return created, nil
}

// DeleteFolder removes the folder from the cached folder list right away.
func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	return c.coord.Run(ctx, MutationSpec{
		Kind: KindDeleteFolder,
		Optimistic: []OptimisticWrite{
			Optimistic(c.folders, FoldersKey(), func(prev []remote.Folder, ok bool) ([]remote.Folder, bool) {
				if !ok {
					return nil, false
				}
				return slices.DeleteFunc(slices.Clone(prev), func(f remote.Folder) bool { return f.ID == id }), true
			}),
		},
		Call: func(ctx context.Context) error {
			return c.api.DeleteFolder(ctx, id)
		},
	})
}

func (c *Client) CreateDocument(ctx context.Context, doc remote.NewDocument) (remote.Document, error) {
	var created remote.Document
	err := c.coord.Run(ctx, MutationSpec{
		Kind: KindCreateDocument,
		Call: func(ctx context.Context) error {
			d, err := c.api.CreateDocument(ctx, doc)
			created = d
			return err
		},
	})
	if err != nil {
		return remote.Document{}, err
	}
	return created, nil
}

// UpdateDocument shows the new content on the cached document, and on its
// folder listing when the folder is known, before the remote call returns.
func (c *Client) UpdateDocument(ctx context.Context, id, content string) (remote.Document, error) {
	now := c.now().UnixMilli()
	edit := func(d remote.Document) remote.Document {
		d.Content = content
		d.UpdatedAt = now
		return d
	}

	writes := []OptimisticWrite{
		Optimistic(c.document, DocumentKey(id), func(prev remote.Document, ok bool) (remote.Document, bool) {
			if !ok {
				return prev, false
			}
			return edit(prev), true
		}),
	}
	if folderID, ok := c.folderOf(ctx, id); ok {
		writes = append(writes, Optimistic(c.documents, DocumentsKey(folderID), func(prev []remote.Document, ok bool) ([]remote.Document, bool) {
			i := slices.IndexFunc(prev, func(d remote.Document) bool { return d.ID == id })
			if !ok || i < 0 {
				return nil, false
			}
			next := slices.Clone(prev)
			next[i] = edit(next[i])
			return next, true
		}))
	}

	var updated remote.Document
	err := c.coord.Run(ctx, MutationSpec{
		Kind:       KindUpdateDocument,
		Optimistic: writes,
		Call: func(ctx context.Context) error {
			d, err := c.api.UpdateDocument(ctx, id, content)
			updated = d
			return err
		},
	})
	if err != nil {
		return remote.Document{}, err
	}
	return updated, nil
}

// DeleteDocument drops the document from its cached folder listing, when the
// folder is known, before the remote call returns.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	var writes []OptimisticWrite
	if folderID, ok := c.folderOf(ctx, id); ok {
		writes = append(writes, Optimistic(c.documents, DocumentsKey(folderID), func(prev []remote.Document, ok bool) ([]remote.Document, bool) {
			if !ok {
				return nil, false
			}
			return slices.DeleteFunc(slices.Clone(prev), func(d remote.Document) bool { return d.ID == id }), true
		}))
	}
	return c.coord.Run(ctx, MutationSpec{
		Kind:       KindDeleteDocument,
		Optimistic: writes,
		Call: func(ctx context.Context) error {
			return c.api.DeleteDocument(ctx, id)
		},
	})
}

// RecordVisit puts the document first in the recency log. The cached log is
// updated immediately and restored if the remote store refuses the entry.
func (c *Client) RecordVisit(ctx context.Context, id, title string) error {
	now := c.now()
	return c.coord.Run(ctx, MutationSpec{
		Kind: KindAddHistory,
		Optimistic: []OptimisticWrite{
			Optimistic(c.history, HistoryKey(), func(prev []HistoryEntry, _ bool) ([]HistoryEntry, bool) {
				return Record(prev, id, title, now), true
			}),
		},
		Call: func(ctx context.Context) error {
			return c.api.AddHistory(ctx, id, title)
		},
	})
}

// Close waits for pending mutations, then releases the Store.
func (c *Client) Close(ctx context.Context) error {
	werr := c.coord.Close(ctx)
	if err := c.store.Close(ctx); err != nil {
		return err
	}
	return werr
}

func (c *Client) folderOf(ctx context.Context, id string) (string, bool) {
	d, ok := c.document.Peek(ctx, DocumentKey(id))
	if !ok || d.FolderID == "" {
		return "", false
	}
	return d.FolderID, true
}
