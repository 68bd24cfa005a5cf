package node

import (
	"os"

	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

func docOf(loc *location.Location, identity string) msg.LocationDoc {
	return msg.LocationDoc{
		Mode:     loc.Mode.String(),
		Category: loc.Category.String(),
		Group:    loc.Group,
		Name:     loc.Name,
		UName:    loc.UName,
		UID:      loc.UID,
		PID:      os.Getpid(),
		Identity: identity,
	}
}

func locationOf(doc msg.LocationDoc) (*location.Location, error) {
	loc, err := location.Parse(doc.UName)
	if err != nil {
		return nil, err
	}
	if loc.UID != doc.UID {
		return nil, errors.Wrapf(exception.ErrProtocol, "location %s announced with uid %08x, want %08x", doc.UName, doc.UID, loc.UID)
	}
	return loc, nil
}
