package embargo

import (
	"time"

	"github.com/meertime/dataportal/internal/db/models"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * day)
}

func project(id int64, code string, embargo time.Duration) models.Project {
	return models.Project{ID: id, Code: code, MainProject: "MeerTIME", EmbargoPeriodSeconds: int64(embargo / time.Second)}
}

func ephemeris(id int64, p models.Project, created time.Time) *models.Ephemeris {
	return &models.Ephemeris{ID: id, PulsarID: 1, Project: p, CreatedAt: created, HasToas: true}
}

func observation(id int64, p models.Project, utc time.Time) *models.Observation {
	return &models.Observation{
		ID: id, PulsarID: 1, PulsarName: "J1909-3744", Telescope: "MeerKAT",
		Project: p, UTCStart: utc, Beam: 1, ObsType: models.ObsTypeFold,
	}
}

func testAccessor() *Accessor {
	return NewAccessor(FixedClock(testNow))
}
