package docsync

// Collection names, the first component of every key docsync caches.
const (
	CollectionFolders   = "folders"
	CollectionDocuments = "documents"
	CollectionDocument  = "document"
	CollectionSearch    = "search"
	CollectionHistory   = "history"
)

func FoldersKey() Key                  { return K(CollectionFolders) }
func DocumentsKey(folderID string) Key { return K(CollectionDocuments, folderID) }
func DocumentKey(id string) Key        { return K(CollectionDocument, id) }
func SearchKey(query string) Key       { return K(CollectionSearch, query) }
func HistoryKey() Key                  { return K(CollectionHistory) }

// invalidations is fixed: which key prefixes each mutation kind makes stale
// once it settles, whatever the outcome.
var invalidations = map[MutationKind][]Key{
	KindCreateFolder:   {K(CollectionFolders), K(CollectionDocuments)},
	KindDeleteFolder:   {K(CollectionFolders), K(CollectionDocuments)},
	KindCreateDocument: {K(CollectionDocuments), K(CollectionDocument), K(CollectionHistory)},
	KindUpdateDocument: {K(CollectionDocuments), K(CollectionDocument), K(CollectionHistory)},
	KindDeleteDocument: {K(CollectionDocuments), K(CollectionDocument), K(CollectionHistory)},
	KindAddHistory:     {K(CollectionHistory)},
}

// Invalidations returns the key prefixes kind invalidates on settle.
func Invalidations(kind MutationKind) []Key {
	src := invalidations[kind]
	out := make([]Key, len(src))
	for i, k := range src {
		out[i] = k.clone()
	}
	return out
}
