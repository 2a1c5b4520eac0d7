package filestore

import (
	"fmt"
	"path"
	"strings"

	"github.com/askanna-io/askanna-core/internal/models"
)

// uploadDir is the scoped directory that holds a file's parts while the
// upload is in progress. It is keyed on the owner's suuid so that aborting an
// upload, or hard-deleting the owner, can remove the whole prefix.
func uploadDir(ref *models.ObjectReference) string {
	return path.Join("uploads", ref.OwnerSUUID)
}

// partKey names one uploaded part: zero-padded part numbers keep lexical and
// numeric order identical.
func partKey(ref *models.ObjectReference, fileSUUID string, partNumber int) string {
	return path.Join(uploadDir(ref), fmt.Sprintf("%s_part_%05d.part", fileSUUID, partNumber))
}

// blobKey names the assembled content. Packages use the sharded layout the
// download URLs are built on; everything else lives under the owner's prefix.
func blobKey(ref *models.ObjectReference, f *models.File) string {
	switch ref.OwnerKind {
	case models.OwnerPackage:
		flat := strings.ReplaceAll(ref.OwnerSUUID, "-", "")
		return path.Join(
			"packages", flat[:2], flat[:4], ref.OwnerSUUID,
			fmt.Sprintf("package_%s.zip", f.UUID),
		)
	default:
		return path.Join("files", ref.OwnerSUUID, f.SUUID, f.Name)
	}
}

// ownerPrefix is the prefix that holds every assembled blob of an owner.
func ownerPrefix(ref *models.ObjectReference) string {
	if ref.OwnerKind == models.OwnerPackage {
		flat := strings.ReplaceAll(ref.OwnerSUUID, "-", "")
		return path.Join("packages", flat[:2], flat[:4], ref.OwnerSUUID)
	}
	return path.Join("files", ref.OwnerSUUID)
}
