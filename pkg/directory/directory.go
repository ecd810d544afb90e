// Package directory implements the node-discovery abstraction this spec
// treats as an external collaborator: lookup of the local node's index,
// lookup of a remote node's short-name by id, and enumeration of active
// nodes filtered by capability bit. Grounded on the teacher's directory-
// adjacent helpers (LC_GetMyNodeIndex/LC_GetNode/LC_GetActiveNodes/
// LC_FindFileServer in levcan_fileclient.c, translated to a table the
// teacher's own NMT/network code would recognize as a node table).
package directory

import log "github.com/sirupsen/logrus"

// Broadcast is the sentinel node id meaning "no node" / "unspecified".
const Broadcast uint8 = 0xFF

// NodeShortName is what the directory exposes about one node: its id and
// capability bits. Broadcast id means "not found".
type NodeShortName struct {
	NodeID     uint8
	FileServer bool
}

// IsNone reports whether this entry represents "no such node".
func (n NodeShortName) IsNone() bool { return n.NodeID == Broadcast }

var none = NodeShortName{NodeID: Broadcast}

// Directory tracks which node ids are local (owned by this process) and
// the short-names of remote nodes currently known to be active.
type Directory struct {
	localNodes  []uint8
	remoteNodes []NodeShortName
}

func New() *Directory {
	return &Directory{}
}

// AddLocalNode registers a node id as owned by this process.
func (d *Directory) AddLocalNode(nodeID uint8) {
	d.localNodes = append(d.localNodes, nodeID)
	log.Debugf("[DIRECTORY] registered local node x%x", nodeID)
}

// MyIndex returns the dense index of a local node, or false if it is not
// one of ours.
func (d *Directory) MyIndex(localNode uint8) (int, bool) {
	for i, id := range d.localNodes {
		if id == localNode {
			return i, true
		}
	}
	return 0, false
}

// AddRemoteNode registers or updates a remote node's short-name.
func (d *Directory) AddRemoteNode(node NodeShortName) {
	for i, existing := range d.remoteNodes {
		if existing.NodeID == node.NodeID {
			d.remoteNodes[i] = node
			return
		}
	}
	d.remoteNodes = append(d.remoteNodes, node)
}

// RemoveRemoteNode drops a remote node from the table, e.g. on a bus-off
// or NMT guarding timeout observed elsewhere.
func (d *Directory) RemoveRemoteNode(nodeID uint8) {
	for i, existing := range d.remoteNodes {
		if existing.NodeID == nodeID {
			d.remoteNodes = append(d.remoteNodes[:i], d.remoteNodes[i+1:]...)
			return
		}
	}
}

// NodeByID looks up a remote node's short-name; a result with the
// Broadcast id means "not found".
func (d *Directory) NodeByID(id uint8) NodeShortName {
	for _, n := range d.remoteNodes {
		if n.NodeID == id {
			return n
		}
	}
	return none
}

// ActiveNodes is a stateful cursor over the remote-node table: each call
// returns the next node and advances cursor, terminating when it returns
// the Broadcast sentinel.
func (d *Directory) ActiveNodes(cursor *int) NodeShortName {
	if *cursor < 0 || *cursor >= len(d.remoteNodes) {
		return none
	}
	n := d.remoteNodes[*cursor]
	*cursor++
	return n
}

// FindFileServer scans ActiveNodes for the first one advertising the
// file-server capability bit.
func (d *Directory) FindFileServer(cursor *int) NodeShortName {
	for {
		n := d.ActiveNodes(cursor)
		if n.IsNone() {
			return none
		}
		if n.FileServer {
			return n
		}
	}
}
