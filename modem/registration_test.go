package modem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationUpdate(t *testing.T) {
	tests := []struct {
		stat uint64
		want RegistrationState
	}{
		{0, NotRegistered},
		{1, Registered},
		{2, NotRegistered},
		{3, NotRegistered},
		{4, NotRegistered},
		{5, Registered},
		{6, NotRegistered},
		{10, NotRegistered},
	}
	for _, tt := range tests {
		for _, d := range []Domain{DomainCircuit, DomainPacket, DomainLTE} {
			r := newRegistration()
			r.update(d, tt.stat)
			assert.Equal(t, tt.want, r.state[d], "domain %s stat %d", d, tt.stat)
		}
	}
}

func TestRegistrationAggregate(t *testing.T) {
	tests := []struct {
		name                 string
		circuit, packet, lte RegistrationState
		want                 bool
	}{
		{"nothing", NotRegistered, NotRegistered, NotRegistered, false},
		{"circuit only", Registered, NotRegistered, NotRegistered, false},
		{"packet only", NotRegistered, Registered, NotRegistered, false},
		{"circuit and packet", Registered, Registered, NotRegistered, true},
		{"lte only", NotRegistered, NotRegistered, Registered, true},
		{"all", Registered, Registered, Registered, true},
		{"circuit and lte", Registered, NotRegistered, Registered, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistration()
			r.state = [3]RegistrationState{tt.circuit, tt.packet, tt.lte}
			assert.Equal(t, tt.want, r.registered())
		})
	}
}

func TestRegistrationReset(t *testing.T) {
	r := newRegistration()
	r.update(DomainLTE, regStatusHome)
	r.update(DomainCircuit, regStatusRoaming)
	r.reset()
	assert.False(t, r.registered())
	assert.Equal(t, [3]RegistrationState{}, r.state)
}

func TestUpdateLocationFirstWriterWins(t *testing.T) {
	r := newRegistration()
	assert.Equal(t, UnknownLAC, r.identity.LocationAreaCode)
	assert.Equal(t, UnknownCellID, r.identity.CellID)

	require.True(t, r.updateLocation(DomainCircuit, 0x1A2B, 0x01C3F0A, AccessTechnologyUTRAN))
	assert.Equal(t, uint16(0x1A2B), r.identity.LocationAreaCode)

	// packet data outranks circuit switched data
	require.True(t, r.updateLocation(DomainPacket, 0x1A2C, 0x01C3F0B, AccessTechnologyUTRAN))
	assert.Equal(t, uint16(0x1A2C), r.identity.LocationAreaCode)
	assert.Equal(t, uint32(0x01C3F0B), r.identity.CellID)

	// later reports of the same or lower priority are ignored
	assert.False(t, r.updateLocation(DomainPacket, 0x0001, 0x0002, AccessTechnologyUTRAN))
	assert.False(t, r.updateLocation(DomainCircuit, 0x0003, 0x0004, AccessTechnologyUTRAN))
	assert.Equal(t, uint16(0x1A2C), r.identity.LocationAreaCode)

	r.invalidateLocation()
	assert.Equal(t, UnknownLAC, r.identity.LocationAreaCode)
	assert.Equal(t, UnknownCellID, r.identity.CellID)

	require.True(t, r.updateLocation(DomainCircuit, 0x0003, 0x0004, AccessTechnologyGSM))
	assert.Equal(t, uint16(0x0003), r.identity.LocationAreaCode)
	assert.Equal(t, uint32(0x0004), r.identity.CellID)
}

func TestUpdateLocationTechnologyFilter(t *testing.T) {
	r := newRegistration()
	assert.False(t, r.updateLocation(DomainPacket, 1, 2, AccessTechnologyLTE), "packet data on LTE")
	assert.False(t, r.updateLocation(DomainLTE, 1, 2, AccessTechnologyUTRAN), "EPS data on 3G")
	assert.False(t, r.updateLocation(DomainLTE, 1, 2, AccessTechnologyNone))
	assert.True(t, r.updateLocation(DomainLTE, 1, 2, AccessTechnologyLTECatM1))
	assert.Equal(t, DomainLTE, r.owner)

	// circuit data is accepted on any technology, but not over EPS data
	assert.False(t, r.updateLocation(DomainCircuit, 3, 4, AccessTechnologyLTE))
}

func TestParseRegistration(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		prefix string
		want   registrationInfo
	}{
		{
			name:   "read reply with location",
			line:   `+CREG: 2,1,"1A2B","01C3F0A",2`,
			prefix: "+CREG",
			want:   registrationInfo{stat: 1, hasLocation: true, lac: 0x1A2B, ci: 0x01C3F0A, hasAct: true, act: AccessTechnologyUTRAN},
		},
		{
			name:   "unsolicited with location",
			line:   `+CREG: 1,"1A2B","01C3F0A",2`,
			prefix: "+CREG",
			want:   registrationInfo{stat: 1, hasLocation: true, lac: 0x1A2B, ci: 0x01C3F0A, hasAct: true, act: AccessTechnologyUTRAN},
		},
		{
			name:   "read reply without location",
			line:   "+CGREG: 2,5",
			prefix: "+CGREG",
			want:   registrationInfo{stat: 5},
		},
		{
			name:   "unsolicited status only",
			line:   "+CEREG: 2",
			prefix: "+CEREG",
			want:   registrationInfo{stat: 2},
		},
		{
			name:   "decimal looking location",
			line:   `+CEREG: 5,"1234","00005678",7`,
			prefix: "+CEREG",
			want:   registrationInfo{stat: 5, hasLocation: true, lac: 0x1234, ci: 0x5678, hasAct: true, act: AccessTechnologyLTE},
		},
		{
			name:   "location without technology",
			line:   `+CGREG: 2,1,"00A1","0000BEEF"`,
			prefix: "+CGREG",
			want:   registrationInfo{stat: 1, hasLocation: true, lac: 0xA1, ci: 0xBEEF},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRegistration(tt.line, tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Both grammars of the same report decode to the same information.
func TestParseRegistrationGrammarsAgree(t *testing.T) {
	reports := []string{
		`1,"1A2B","01C3F0A",2`,
		`5,"FFFE","0FFFFFFF",7`,
		`0`,
		`2,"0001","00000001",0`,
	}
	for _, report := range reports {
		solicited, err := parseRegistration("+CREG: 2,"+report, "+CREG")
		require.NoError(t, err, report)
		unsolicited, err := parseRegistration("+CREG: "+report, "+CREG")
		require.NoError(t, err, report)
		assert.Equal(t, solicited, unsolicited, report)
	}
}

func TestParseRegistrationErrors(t *testing.T) {
	for _, line := range []string{
		"+CREG:",
		`+CREG: "1A2B"`,
		"+CREG: x,y",
		"+CGREG: 1",
	} {
		_, err := parseRegistration(line, "+CREG")
		assert.True(t, errors.Is(err, ErrUnexpectedResponse), "%q: %v", line, err)
	}
}
