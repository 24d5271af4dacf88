package at

const (
	// Terminal Control
	CR   = "\r"
	CRLF = "\r\n"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URC prefixes (network registration)
	UrcCircuitRegistration = "+CREG"
	UrcPacketRegistration  = "+CGREG"
	UrcLTERegistration     = "+CEREG"
)

// Commands shared by the client bring-up and query paths.
const (
	CmdAt             = "AT"
	CmdSimStatus      = "AT+CPIN?"
	CmdIccid          = "AT+CCID"
	CmdImsi           = "AT+CIMI"
	CmdImei           = "AT+CGSN"
	CmdFirmware       = "AT+CGMR"
	CmdAppFirmware    = "ATI9"
	CmdHWFlowControl  = "AT+IFC=2,2"
	CmdOperatorFormat = "AT+COPS=3,2"
	CmdOperatorQuery  = "AT+COPS?"
	CmdDeregister     = "AT+COPS=2,2"
	CmdAutoRegister   = "AT+COPS=0,2"
	CmdSignalQuality  = "AT+CSQ"
	CmdGPIOConfig     = "AT+UGPIOC?"
	CmdMNOProfile     = "AT+UMNOPROF?"
	CmdRATQuery       = "AT+URAT?"
	CmdEDRXQuery      = "AT+CEDRXS?"
	CmdPSMDisable     = "AT+CPSMS=0"
	CmdPowerSaving    = "AT+UPSV=0"

	SimReady = "READY"
)

type ResponseType int

const (
	TypeFinal ResponseType = iota // OK, ERROR, +CME ERROR
	TypeData                      // Intermediate command output (+CSQ: ...)
	TypeEmpty                     // Blank separator line
)
