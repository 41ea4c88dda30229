package cip

import "fmt"

// CIP Data Types
type USINT uint8
type UINT uint16
type UDINT uint32
type ULINT uint64
type SINT int8
type INT int16
type DINT int32
type LINT int64
type REAL float32
type LREAL float64
type BYTE byte
type WORD uint16
type DWORD uint32
type LWORD uint64

// Service Codes
const (
	ServiceGetAttributeAll        USINT = 0x01
	ServiceSetAttributeAll        USINT = 0x02
	ServiceGetAttributeList       USINT = 0x03
	ServiceSetAttributeList       USINT = 0x04
	ServiceReset                  USINT = 0x05
	ServiceStart                  USINT = 0x06
	ServiceStop                   USINT = 0x07
	ServiceCreate                 USINT = 0x08
	ServiceDelete                 USINT = 0x09
	ServiceMultipleServicePacket  USINT = 0x0A
	ServiceApplyAttributes        USINT = 0x0D
	ServiceGetAttributeSingle     USINT = 0x0E
	ServiceSetAttributeSingle     USINT = 0x10
	ServiceFindNextObjectInstance USINT = 0x11
	ServiceRestore                USINT = 0x15
	ServiceSave                   USINT = 0x16
	ServiceNop                    USINT = 0x17
	ServiceGetMember              USINT = 0x18
	ServiceSetMember              USINT = 0x19
	ServiceInsertMember           USINT = 0x1A
	ServiceRemoveMember           USINT = 0x1B
	ServiceGroupSync              USINT = 0x1C
)

// Common Classes
const (
	ClassIdentity       UINT = 0x01
	ClassMessageRouter  UINT = 0x02
	ClassDeviceNet      UINT = 0x03
	ClassAssembly       UINT = 0x04
	ClassConnection     UINT = 0x05
	ClassConnectionMgr  UINT = 0x06
	ClassRegister       UINT = 0x07
	ClassParameter      UINT = 0x0F
	ClassParameterGroup UINT = 0x10
	ClassGroup          UINT = 0x12
	ClassDiscreteInput  UINT = 0x1D
	ClassDiscreteOutput UINT = 0x1E
	ClassAnalogInput    UINT = 0x1F
	ClassAnalogOutput   UINT = 0x20
	ClassPositionSensor UINT = 0x23
	ClassPositionCtrl   UINT = 0x24
	ClassACDrive        UINT = 0x2A
	ClassMotorOverload  UINT = 0x29
	ClassControlNet     UINT = 0xF0
	ClassEthernetLink   UINT = 0xF6
	ClassTCPIPInterface UINT = 0xF5
)

// Attribute access flags, gating GetAttributeSingle/GetAttributeAll/SetAttributeSingle
// per the registry's (get_mask & attribute_flags) rule (spec 4.4).
type AttrFlags uint8

const (
	GetableSingle AttrFlags = 1 << iota
	GetableAll
	SetableSingle
)

// GetableSingleAll is the common case of an attribute visible to both
// GetAttributeSingle and GetAttributeAll.
const GetableSingleAll = GetableSingle | GetableAll

// DataType represents a CIP data type code (16-bit)
type DataType uint16

// Data Type Codes (for encoding/decoding)
const (
	TypeBOOL          DataType = 0x00C1
	TypeSINT          DataType = 0x00C2
	TypeINT           DataType = 0x00C3
	TypeDINT          DataType = 0x00C4
	TypeLINT          DataType = 0x00C5
	TypeUSINT         DataType = 0x00C6
	TypeUINT          DataType = 0x00C7
	TypeUDINT         DataType = 0x00C8
	TypeULINT         DataType = 0x00C9
	TypeREAL          DataType = 0x00CA
	TypeLREAL         DataType = 0x00CB
	TypeSTIME         DataType = 0x00CC
	TypeDATE          DataType = 0x00CD
	TypeTIME_OF_DAY   DataType = 0x00CE
	TypeDATE_AND_TIME DataType = 0x00CF
	TypeSTRING        DataType = 0x00D0
	TypeBYTE          DataType = 0x00D1
	TypeWORD          DataType = 0x00D2
	TypeDWORD         DataType = 0x00D3
	TypeLWORD         DataType = 0x00D4
	TypeSTRING2       DataType = 0x00D5
	TypeFTIME         DataType = 0x00D6
	TypeLTIME         DataType = 0x00D7
	TypeITIME         DataType = 0x00D8
	TypeSTRINGN       DataType = 0x00D9
	TypeSHORT_STRING  DataType = 0x00DA
	TypeTIME          DataType = 0x00DB
	TypeEPATH         DataType = 0x00DC
	TypeENGUNIT       DataType = 0x00DD
	TypeSTRINGI       DataType = 0x00DE
	TypeSTRUCT        DataType = 0x02A0 // Common struct type code

	// Compound / opaque tags used by attribute descriptors outside the
	// strict CIP elementary-type table (spec 3, attribute descriptor).
	TypeBYTE_ARRAY  DataType = 0x00A0 // opaque byte array, e.g. Assembly attribute 3
	Type6Usint      DataType = 0x00A1 // 6xUSINT, e.g. Ethernet Link MAC address
	TypeRevision    DataType = 0x00A2 // major/minor revision pair (2xUSINT)
	TypeInternalUint6 DataType = 0x00A3 // 6xUINT, e.g. TCP/IP interface status block
	TypeTcpIpAttr5  DataType = 0x00A4 // compound TCP/IP Interface attribute 5 (Interface Configuration)
)

// General Status Codes (CIP Vol.1 Appendix B)
const (
	StatusSuccess                USINT = 0x00
	StatusConnectionFailure      USINT = 0x01
	StatusResourceUnavailable    USINT = 0x02
	StatusInvalidParameterValue  USINT = 0x03
	StatusPathSegmentError       USINT = 0x04
	StatusPathDestinationUnknown USINT = 0x05
	StatusPartialTransfer        USINT = 0x06
	StatusConnectionLost         USINT = 0x07
	StatusServiceNotSupported    USINT = 0x08
	StatusInvalidAttributeValue  USINT = 0x09
	StatusAttributeListError     USINT = 0x0A
	StatusAlreadyInRequestedState USINT = 0x0B
	StatusAttributeNotSettable   USINT = 0x0E
	StatusPrivilegeViolation     USINT = 0x10
	StatusDeviceStateConflict    USINT = 0x11
	StatusReplyDataTooLarge      USINT = 0x12
	StatusNotEnoughData          USINT = 0x13
	StatusAttributeNotSupported  USINT = 0x14
	StatusTooMuchData            USINT = 0x15
	StatusObjectDoesNotExist     USINT = 0x16
	StatusAttributeListShortage  USINT = 0x1C
	StatusInvalidSegmentType     USINT = 0x04 // PathSegmentError and InvalidSegmentType share 0x04 on the wire
	StatusServiceFragmentation   USINT = 0x2D
)

// Extended status codes, carried in the additional_status words of a
// ConnectionFailure reply (spec 4.6/4.7/4.10, 7).
const (
	ExtStatusConnectionInUse                    UINT = 0x0100
	ExtStatusTransportTriggerNotSupported        UINT = 0x0103
	ExtStatusOwnershipConflict                   UINT = 0x0106
	ExtStatusConnectionNotFoundAtTarget          UINT = 0x0107
	ExtStatusInvalidConnectionPointInNetworkSeg   UINT = 0x0108
	ExtStatusInvalidOToTConnectionType            UINT = 0x0123
	ExtStatusInvalidTToOConnectionType            UINT = 0x0124
	ExtStatusInvalidOToTConnectionSize            UINT = 0x0127
	ExtStatusInvalidTToOConnectionSize            UINT = 0x0128
	ExtStatusInvalidSegmentTypeInPath            UINT = 0x0315
	ExtStatusInconsistentApplicationPathCombo     UINT = 0x0314
	ExtStatusVendorIdOrProductCodeError           UINT = 0x0129
	ExtStatusDeviceTypeError                      UINT = 0x012A
	ExtStatusRevisionMismatch                     UINT = 0x012B
	ExtStatusConnectionNotFoundAtTargetApplication UINT = 0x0204
)

// Error represents a CIP reply status: the single currency any request
// handler returns to carry a general status plus extended status words
// back through the Message Router to the wire. It is not a Go plumbing
// error — see the AMBIENT STACK note on error handling.
type Error struct {
	Status    USINT
	ExtStatus []UINT // Extended status is usually a list of words

	// ResponseData optionally carries a reply body alongside the error
	// status — e.g. ForwardOpen/ForwardClose echo the identity triple in
	// their error replies (spec 4.6, 4.10, 7) even though the request
	// failed.
	ResponseData []byte
}

func (e Error) Error() string {
	if len(e.ExtStatus) == 0 {
		return fmt.Sprintf("CIP status 0x%02X", e.Status)
	}
	return fmt.Sprintf("CIP status 0x%02X ext=%v", e.Status, e.ExtStatus)
}

// Err builds a plain general-status error with no extended status words.
func Err(status USINT) Error {
	return Error{Status: status}
}

// ErrExt builds a general-status error carrying extended status words,
// e.g. a ConnectionFailure with ConnectionInUse.
func ErrExt(status USINT, ext ...UINT) Error {
	return Error{Status: status, ExtStatus: ext}
}

// ErrWithData builds an error reply that still carries a response body,
// e.g. a ForwardClose failure that echoes the identity triple (spec 4.10).
func ErrWithData(status USINT, data []byte, ext ...UINT) Error {
	return Error{Status: status, ExtStatus: ext, ResponseData: data}
}

// IsArray returns true if the array bit (0x8000) is set
func (d DataType) IsArray() bool {
	return (d & 0x8000) != 0
}

// Base returns the base type without flags (e.g. Array bit)
func (d DataType) Base() DataType {
	return d & 0x7FFF // Mask out Array bit (Bit 15)
}

// String returns the string representation of the data type
func (d DataType) String() string {
	base := d.Base()
	name, ok := typeNames[base]
	if !ok {
		if d.IsArray() {
			return fmt.Sprintf("UNKNOWN(0x%04X)[]", uint16(base))
		}
		return fmt.Sprintf("UNKNOWN(0x%04X)", uint16(d))
	}

	if d.IsArray() {
		return name + "[]"
	}
	return name
}

var typeNames = map[DataType]string{
	TypeBOOL:          "BOOL",
	TypeSINT:          "SINT",
	TypeINT:           "INT",
	TypeDINT:          "DINT",
	TypeLINT:          "LINT",
	TypeUSINT:         "USINT",
	TypeUINT:          "UINT",
	TypeUDINT:         "UDINT",
	TypeULINT:         "ULINT",
	TypeREAL:          "REAL",
	TypeLREAL:         "LREAL",
	TypeSTIME:         "STIME",
	TypeDATE:          "DATE",
	TypeTIME_OF_DAY:   "TIME_OF_DAY",
	TypeDATE_AND_TIME: "DATE_AND_TIME",
	TypeSTRING:        "STRING",
	TypeBYTE:          "BYTE",
	TypeWORD:          "WORD",
	TypeDWORD:         "DWORD",
	TypeLWORD:         "LWORD",
	TypeSTRING2:       "STRING2",
	TypeFTIME:         "FTIME",
	TypeLTIME:         "LTIME",
	TypeITIME:         "ITIME",
	TypeSTRINGN:       "STRINGN",
	TypeSHORT_STRING:  "SHORT_STRING",
	TypeTIME:          "TIME",
	TypeEPATH:         "EPATH",
	TypeENGUNIT:       "ENGUNIT",
	TypeSTRINGI:       "STRINGI",
	TypeSTRUCT:        "STRUCT",
	TypeBYTE_ARRAY:    "BYTE_ARRAY",
	Type6Usint:        "USINT[6]",
	TypeRevision:      "REVISION",
	TypeInternalUint6: "UINT[6]",
	TypeTcpIpAttr5:    "TCPIP_ATTR5",
}
