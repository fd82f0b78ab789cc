package eventlog

import (
	"encoding/binary"

	"github.com/rzbill/buildlog/pkg/id"
)

// Key layout, byte-wise sortable:
//
//	ns/{project}/build/{id16}/m            last sequence
//	ns/{project}/build/{id16}/e/{seq_be8}  entries
//	ns/{project}/builds/{id16}             build info index
//	ns/{project}/cursor/{id16}/{group}     durable reader cursors

var (
	nsPrefix   = []byte("ns/")
	buildSeg   = []byte("/build/")
	indexSeg   = []byte("/builds/")
	cursorSeg  = []byte("/cursor/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func buildPrefix(project string, build id.ID) []byte {
	k := make([]byte, 0, len(nsPrefix)+len(project)+len(buildSeg)+16+16)
	k = append(k, nsPrefix...)
	k = append(k, project...)
	k = append(k, buildSeg...)
	return append(k, build[:]...)
}

// KeyLogMeta is the key holding the last assigned sequence of a build.
func KeyLogMeta(project string, build id.ID) []byte {
	return append(buildPrefix(project, build), metaSuffix...)
}

// KeyLogEntry is the key of entry seq within a build.
func KeyLogEntry(project string, build id.ID, seq uint64) []byte {
	k := append(buildPrefix(project, build), entrySeg...)
	return binary.BigEndian.AppendUint64(k, seq)
}

// KeyBuildIndexPrefix covers every build info key of a project.
func KeyBuildIndexPrefix(project string) []byte {
	k := make([]byte, 0, len(nsPrefix)+len(project)+len(indexSeg)+16)
	k = append(k, nsPrefix...)
	k = append(k, project...)
	return append(k, indexSeg...)
}

// KeyBuildIndex is the info key of one build.
func KeyBuildIndex(project string, build id.ID) []byte {
	return append(KeyBuildIndexPrefix(project), build[:]...)
}

// KeyCursor is the durable cursor key of a reader group on a build.
func KeyCursor(project string, build id.ID, group string) []byte {
	k := make([]byte, 0, len(nsPrefix)+len(project)+len(cursorSeg)+17+len(group))
	k = append(k, nsPrefix...)
	k = append(k, project...)
	k = append(k, cursorSeg...)
	k = append(k, build[:]...)
	k = append(k, '/')
	return append(k, group...)
}
