package identity

// ComputeNodeID returns the identifier of the node at path.
//
// A nil content slice marks a node without content (a directory); an empty
// file must pass a non-nil empty slice. Children are hashed in the order
// given, so callers pass them in canonical path order. The path is
// canonicalized with CanonicalPath before hashing.
func ComputeNodeID(path string, content []byte, children []NodeID) NodeID {
	if content == nil {
		return ComputeNodeIDFromDigest(path, nil, children)
	}
	d := HashContent(content)
	return ComputeNodeIDFromDigest(path, &d, children)
}

// ComputeNodeIDFromDigest is ComputeNodeID for callers that already hold the
// content digest, such as streaming file ingestion. It yields the same
// identifier as ComputeNodeID over the digested bytes.
func ComputeNodeIDFromDigest(path string, content *Digest, children []NodeID) NodeID {
	e := newEncoder(DomainNode)
	e.string(CanonicalPath(path))
	e.flag(content != nil)
	if content != nil {
		e.raw(content[:])
	}
	e.uint64(uint64(len(children)))
	for _, c := range children {
		e.raw(c[:])
	}

	var id NodeID
	e.sum(id[:])
	return id
}
