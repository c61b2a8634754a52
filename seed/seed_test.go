package seed_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/seed"
	"github.com/warp/leave-engine/store/memory"
)

type SeedSuite struct {
	suite.Suite
	ctx   context.Context
	repo  *memory.Repository
	clock *generic.FixedClock
}

func TestSeedSuite(t *testing.T) {
	suite.Run(t, new(SeedSuite))
}

func (s *SeedSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = memory.New()
	s.clock = &generic.FixedClock{At: time.Date(2016, time.October, 3, 9, 0, 0, 0, time.UTC)}
}

func (s *SeedSuite) amounts(user leave.UserID) map[string]string {
	ups, err := s.repo.UserPools(s.ctx, user)
	s.Require().NoError(err)
	out := make(map[string]string, len(ups))
	for _, up := range ups {
		out[up.Pool.Key()] = up.Amount.String()
	}
	return out
}

func (s *SeedSuite) TestScenariosListsEmbeddedFixtures() {
	list, err := seed.Scenarios()
	s.Require().NoError(err)

	var ids []string
	for _, sc := range list {
		ids = append(ids, sc.ID)
		s.NotEmpty(sc.Name)
	}
	s.Equal([]string{"france-team", "luxembourg-office"}, ids)
}

func (s *SeedSuite) TestLoadFranceTeam() {
	// GIVEN: the embedded France fixture
	f, err := seed.Embedded("france-team")
	s.Require().NoError(err)

	// WHEN
	report, err := seed.Load(s.ctx, s.repo, s.clock, f)

	// THEN: every user, pool and non-zero grant is written
	s.Require().NoError(err)
	s.Equal(seed.Report{VacationTypes: 4, Users: 4, Pools: 7, Assigned: 7, Grants: 5}, report)

	paul, err := s.repo.GetUser(s.ctx, "paul")
	s.Require().NoError(err)
	s.Equal(leave.UserID("claire"), paul.ManagerID)
	s.Equal(leave.RoleUser, paul.Role)
	s.True(paul.ArrivalDate.Equal(generic.NewTimePoint(2014, time.September, 1)))

	s.Equal(map[string]string{"CP restant": "2.5", "CP acquis": "10", "RTT": "0"}, s.amounts("paul"))

	ines, err := s.repo.GetUser(s.ctx, "ines")
	s.Require().NoError(err)
	s.True(ines.HasFeature(leave.FeatureDisableRTT))
}

func (s *SeedSuite) TestLoadTwiceSkipsGrants() {
	f, err := seed.Embedded("luxembourg-office")
	s.Require().NoError(err)

	_, err = seed.Load(s.ctx, s.repo, s.clock, f)
	s.Require().NoError(err)

	// WHEN: the same fixture is loaded again
	report, err := seed.Load(s.ctx, s.repo, s.clock, f)

	// THEN: the opening grants are not applied twice
	s.Require().NoError(err)
	s.Equal(0, report.Grants)
	s.Equal(2, report.Skipped)
	s.Equal(map[string]string{"CP acquis": "104", "Compensatoire": "0"}, s.amounts("luc"))

	entries, err := s.repo.Load(s.ctx, "luc", "luc:cp-acquis-2016")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("opening", entries[0].Flavor)
	s.Equal(generic.UnitHours, entries[0].Delta.Unit)
}

func (s *SeedSuite) TestLoadRollsBackOnBadGrant() {
	f, err := seed.Parse([]byte(`
users:
  - {id: u1, country: fr, arrival_date: "2015-01-01"}
grants:
  - {user: u1, pool: nowhere, amount: "3"}
`))
	s.Require().NoError(err)

	_, err = seed.Load(s.ctx, s.repo, s.clock, f)

	s.Require().Error(err)
	s.Contains(err.Error(), "unknown pool")
	_, err = s.repo.GetUser(s.ctx, "u1")
	s.ErrorIs(err, leave.ErrUserNotFound)
}

func (s *SeedSuite) TestLoadFileAndBadInput() {
	path := filepath.Join(s.T().TempDir(), "fixture.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
pools:
  - {id: p1, name: RTT, vacation_type: RTT, country: fr, start: "2016-12-31", end: "2016-01-01"}
`), 0o600))

	f, err := seed.LoadFile(path)
	s.Require().NoError(err)

	_, err = seed.Load(s.ctx, s.repo, s.clock, f)
	s.ErrorIs(err, generic.ErrInvalidPeriod)

	_, err = seed.Embedded("atlantis")
	s.True(generic.IsNotFound(err))

	_, err = seed.Parse([]byte("users: {"))
	s.Error(err)
}
