package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/model"
	"github.com/nerrad567/gray-logic-cti/internal/status"
)

// Version is the result of astVersion.
type Version struct {
	Asterisk string `json:"asterisk"`
	AMI      string `json:"ami,omitempty"`
}

// ChannelInfo is one entry of listChannels.
type ChannelInfo struct {
	Channel        string              `json:"channel"`
	UniqueID       string              `json:"unique_id"`
	State          status.ChannelState `json:"state"`
	Type           string              `json:"type"`
	CallerNum      string              `json:"caller_num"`
	CallerName     string              `json:"caller_name,omitempty"`
	BridgedNum     string              `json:"bridged_num,omitempty"`
	BridgedName    string              `json:"bridged_name,omitempty"`
	BridgedChannel string              `json:"bridged_channel,omitempty"`
	Duration       string              `json:"duration,omitempty"`
}

// Channel leg types reported by listChannels.
const (
	LegSource      = "source"
	LegDestination = "destination"
	LegUnknown     = "unknown"
)

// ExtenState is the result of extenStatus.
type ExtenState struct {
	Exten  string             `json:"exten"`
	Status status.ExtenStatus `json:"status"`
}

// Peer is one entry of listSipPeers.
type Peer struct {
	Exten       string            `json:"exten"`
	ChannelType string            `json:"channel_type"`
	IP          string            `json:"ip,omitempty"`
	RawStatus   string            `json:"raw_status"`
	Status      status.PeerStatus `json:"status"`
}

// PeerDetails is the result of sipDetails.
type PeerDetails struct {
	Exten     string `json:"exten"`
	Name      string `json:"name,omitempty"`
	IP        string `json:"ip,omitempty"`
	Port      string `json:"port,omitempty"`
	ChanType  string `json:"chan_type"`
	Status    string `json:"status"`
	UserAgent string `json:"user_agent,omitempty"`
}

// QueueStatus is one queue of queueDetails.
type QueueStatus struct {
	Queue            string       `json:"queue"`
	HoldTime         int          `json:"hold_time"`
	TalkTime         int          `json:"talk_time"`
	Completed        int          `json:"completed"`
	Abandoned        int          `json:"abandoned"`
	ServiceLevel     int          `json:"service_level"`
	ServiceLevelPerf string       `json:"service_level_perf"`
	Members          []QueueAgent `json:"members"`
	Callers          []QueueEntry `json:"callers"`
}

// QueueAgent is a member line of queueDetails.
type QueueAgent struct {
	Member     string `json:"member"`
	Name       string `json:"name"`
	Membership string `json:"membership"`
	Paused     bool   `json:"paused"`
	Status     string `json:"status"`
	CallsTaken int    `json:"calls_taken"`
	LastCall   int64  `json:"last_call"`
}

// QueueEntry is a waiting caller line of queueDetails.
type QueueEntry struct {
	Channel    string `json:"channel"`
	Position   int    `json:"position"`
	CallerNum  string `json:"caller_num"`
	CallerName string `json:"caller_name,omitempty"`
	Wait       int    `json:"wait"`
}

// ParkedCallInfo is one entry of listParkedCalls.
type ParkedCallInfo struct {
	Slot       string `json:"slot"`
	Channel    string `json:"channel"`
	From       string `json:"from,omitempty"`
	CallerNum  string `json:"caller_num,omitempty"`
	CallerName string `json:"caller_name,omitempty"`
	Timeout    int    `json:"timeout"`
}

// Mailbox is one entry of listVoicemail.
type Mailbox struct {
	Mailbox          string `json:"mailbox"`
	Context          string `json:"context"`
	Name             string `json:"name"`
	Email            string `json:"email,omitempty"`
	NewMessages      int    `json:"new_messages"`
	OldMessages      int    `json:"old_messages"`
	MaxMessageCount  int    `json:"max_message_count"`
	MaxMessageLength int    `json:"max_message_length"`
}

// ParkingLot is one entry of listParkings. Slots run from First to Last
// inclusive.
type ParkingLot struct {
	Name    string `json:"name"`
	First   int    `json:"first"`
	Last    int    `json:"last"`
	Timeout int    `json:"timeout"`
}

// DahdiChannel is one entry of listDahdiChannels.
type DahdiChannel struct {
	Channel string             `json:"channel"`
	Alarm   string             `json:"alarm"`
	Status  status.TrunkStatus `json:"status"`
}

// list builds a list action that takes no arguments. terminal is the
// event closing the list; older PBX versions send it without EventList.
func list(name, act, terminal string, interpret func(Args, ami.Result) (any, error)) Command {
	return &action{
		name: name,
		build: func(Args) (ami.Frame, error) {
			return ami.NewFrame(ami.FieldAction, act), nil
		},
		completion: ami.ListUntil(terminal),
		interpret: func(args Args, r ami.Result) (any, error) {
			if r.Err != nil {
				return nil, r.Err
			}
			return interpret(args, r)
		},
	}
}

// AstVersion reports the PBX version from CoreSettings.
func AstVersion() Command {
	return &action{
		name: "astVersion",
		build: func(Args) (ami.Frame, error) {
			return ami.NewFrame(ami.FieldAction, "CoreSettings"), nil
		},
		interpret: func(_ Args, r ami.Result) (any, error) {
			if r.Err != nil {
				return nil, r.Err
			}
			resp, _ := r.Response()
			v := Version{Asterisk: resp.Get("AsteriskVersion"), AMI: resp.Get("AMIversion")}
			if v.Asterisk == "" {
				v.Asterisk = "unknown"
			}
			return v, nil
		},
	}
}

// ListChannels lists active channels. Entries without a caller number
// are internal legs and are skipped.
func ListChannels() Command {
	return list("listChannels", "CoreShowChannels", "CoreShowChannelsComplete", func(_ Args, r ami.Result) (any, error) {
		out := []ChannelInfo{}
		for _, f := range r.Events("CoreShowChannel") {
			if f.Get("CallerIDNum") == "" {
				continue
			}
			out = append(out, ChannelInfo{
				Channel:        f.Get("Channel"),
				UniqueID:       f.Get("Uniqueid"),
				State:          status.Channel(f.Get("ChannelState")),
				Type:           legType(f),
				CallerNum:      f.Get("CallerIDNum"),
				CallerName:     f.Get("CallerIDName"),
				BridgedNum:     f.Get("ConnectedLineNum"),
				BridgedName:    f.Get("ConnectedLineName"),
				BridgedChannel: f.Get("BridgedChannel"),
				Duration:       f.Get("Duration"),
			})
		}
		return out, nil
	})
}

// legType guesses which side of a call a channel is. Of two bridged
// channels the one created later is the destination.
func legType(f ami.Frame) string {
	ch, bridged := f.Get("Channel"), f.Get("BridgedChannel")
	if bridged != "" {
		if channelSeq(ch) > channelSeq(bridged) {
			return LegDestination
		}
		return LegSource
	}
	switch f.Get("ChannelState") {
	case "5":
		return LegDestination
	case "4":
		return LegSource
	default:
		return LegUnknown
	}
}

// channelSeq returns the hexadecimal sequence suffix of a channel name.
func channelSeq(ch string) string {
	if i := strings.LastIndexByte(ch, '-'); i >= 0 {
		return ch[i+1:]
	}
	return ""
}

// ExtenStatus reads the hint state of one extension. Args: exten,
// optional context.
func ExtenStatus() Command {
	return &action{
		name: "extenStatus",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("exten"); err != nil {
				return ami.Frame{}, err
			}
			f := ami.NewFrame(ami.FieldAction, "ExtensionState", "Exten", args.Get("exten"))
			if c := args.Get("context"); c != "" {
				f.Add("Context", c)
			}
			return f, nil
		},
		interpret: func(args Args, r ami.Result) (any, error) {
			if r.Err != nil {
				return nil, r.Err
			}
			resp, _ := r.Response()
			exten := resp.Or("Exten", args.Get("exten"))
			if resp.Get("Status") == "-1" {
				return nil, fmt.Errorf("%w: extension %s", ErrNotFound, exten)
			}
			return ExtenState{Exten: exten, Status: status.Exten(resp.Get("Status"))}, nil
		},
	}
}

// ListSipPeers lists SIP peers with their reachability.
func ListSipPeers() Command {
	return list("listSipPeers", "SIPpeers", "PeerlistComplete", peerEntries)
}

// ListIaxPeers lists IAX peers with their reachability.
func ListIaxPeers() Command {
	return list("listIaxPeers", "IAXpeerlist", "PeerlistComplete", peerEntries)
}

func peerEntries(_ Args, r ami.Result) (any, error) {
	out := []Peer{}
	for _, f := range r.Events("PeerEntry") {
		if f.Get("ObjectName") == "" {
			continue
		}
		ip := f.Get("IPaddress")
		if ip == "-none-" || ip == "(null)" {
			ip = ""
		}
		out = append(out, Peer{
			Exten:       f.Get("ObjectName"),
			ChannelType: f.Get("Channeltype"),
			IP:          ip,
			RawStatus:   f.Get("Status"),
			Status:      status.Peer(f.Get("Status")),
		})
	}
	return out, nil
}

// SipDetails reads the details of one SIP peer. Args: exten.
func SipDetails() Command {
	return &action{
		name: "sipDetails",
		build: func(args Args) (ami.Frame, error) {
			if err := args.Require("exten"); err != nil {
				return ami.Frame{}, err
			}
			return ami.NewFrame(ami.FieldAction, "SIPshowpeer", "Peer", args.Get("exten")), nil
		},
		interpret: func(args Args, r ami.Result) (any, error) {
			if r.Err != nil {
				return nil, r.Err
			}
			resp, _ := r.Response()
			if resp.Get("ObjectName") != args.Get("exten") {
				return nil, fmt.Errorf("%w: peer %q, got %q", ErrUnexpectedResponse, args.Get("exten"), resp.Get("ObjectName"))
			}
			d := PeerDetails{
				Exten:     resp.Get("ObjectName"),
				Name:      callerIDName(resp.Get("Callerid")),
				IP:        resp.Get("Address-IP"),
				Port:      resp.Get("Address-Port"),
				ChanType:  resp.Get("Channeltype"),
				Status:    strings.ToLower(resp.Get("Status")),
				UserAgent: resp.Get("SIP-Useragent"),
			}
			if d.IP == "(null)" {
				d.IP = ""
			}
			if d.Port == "0" {
				d.Port = ""
			}
			return d, nil
		},
	}
}

// callerIDName extracts the name of `"Alice" <200>`.
func callerIDName(cid string) string {
	i := strings.IndexByte(cid, '<')
	if i < 0 || !strings.Contains(cid[i:], ">") {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(cid[:i], `"`, ""))
}

// ListQueues lists queue names from QueueSummary. The built-in "default"
// queue is skipped.
func ListQueues() Command {
	return list("listQueues", "QueueSummary", "QueueSummaryComplete", func(_ Args, r ami.Result) (any, error) {
		out := []string{}
		for _, f := range r.Events("QueueSummary") {
			if q := f.Get("Queue"); q != "" && q != "default" {
				out = append(out, q)
			}
		}
		return out, nil
	})
}

// QueueDetails reads parameters, members and waiting callers of every
// queue, or of one queue when the queue arg is set.
func QueueDetails() Command {
	return &action{
		name: "queueDetails",
		build: func(args Args) (ami.Frame, error) {
			f := ami.NewFrame(ami.FieldAction, "QueueStatus")
			if q := args.Get("queue"); q != "" {
				f.Add("Queue", q)
			}
			return f, nil
		},
		completion: ami.ListUntil("QueueStatusComplete"),
		interpret: func(_ Args, r ami.Result) (any, error) {
			if r.Err != nil {
				return nil, r.Err
			}
			return parseQueueStatus(r), nil
		},
	}
}

func parseQueueStatus(r ami.Result) []QueueStatus {
	var order []string
	byName := make(map[string]*QueueStatus)
	get := func(name string) *QueueStatus {
		q, ok := byName[name]
		if !ok {
			q = &QueueStatus{Queue: name, Members: []QueueAgent{}, Callers: []QueueEntry{}}
			byName[name] = q
			order = append(order, name)
		}
		return q
	}

	for _, f := range r.Frames {
		name := f.Get("Queue")
		if name == "" || name == "default" {
			continue
		}
		switch {
		case f.IsNamed("QueueParams"):
			q := get(name)
			q.HoldTime = atoi(f.Get("Holdtime"))
			q.TalkTime = atoi(f.Get("TalkTime"))
			q.Completed = atoi(f.Get("Completed"))
			q.Abandoned = atoi(f.Get("Abandoned"))
			q.ServiceLevel = atoi(f.Get("ServiceLevel"))
			q.ServiceLevelPerf = f.Get("ServicelevelPerf")
		case f.IsNamed("QueueMember"):
			q := get(name)
			q.Members = append(q.Members, QueueAgent{
				Member:     model.MemberID(f.Or("Location", f.Get("Interface"))),
				Name:       f.Get("Name"),
				Membership: f.Get("Membership"),
				Paused:     f.Get("Paused") == "1",
				Status:     string(status.QueueMember(f.Get("Status"))),
				CallsTaken: atoi(f.Get("CallsTaken")),
				LastCall:   int64(atoi(f.Get("LastCall"))),
			})
		case f.IsNamed("QueueEntry"):
			q := get(name)
			q.Callers = append(q.Callers, QueueEntry{
				Channel:    f.Get("Channel"),
				Position:   atoi(f.Get("Position")),
				CallerNum:  f.Get("CallerIDNum"),
				CallerName: f.Get("CallerIDName"),
				Wait:       atoi(f.Get("Wait")),
			})
		}
	}

	out := make([]QueueStatus, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

// ListParkedCalls lists occupied parking slots. Field names of both the
// legacy and the bridge-based parking modules are accepted.
func ListParkedCalls() Command {
	return list("listParkedCalls", "ParkedCalls", "ParkedCallsComplete", func(_ Args, r ami.Result) (any, error) {
		out := []ParkedCallInfo{}
		for _, f := range r.Events("ParkedCall") {
			p := ParkedCallInfo{
				Slot:       f.Or("Exten", f.Get("ParkingSpace")),
				Channel:    f.Or("Channel", f.Get("ParkeeChannel")),
				From:       f.Or("From", f.Get("ParkerDialString")),
				CallerNum:  f.Or("CallerIDNum", f.Get("ParkeeCallerIDNum")),
				CallerName: f.Or("CallerIDName", f.Get("ParkeeCallerIDName")),
				Timeout:    atoi(f.Or("Timeout", f.Get("ParkingTimeout"))),
			}
			if p.Slot == "" {
				continue
			}
			out = append(out, p)
		}
		return out, nil
	})
}

// ListParkings lists the parking lots and their slot ranges. The PBX
// sends Parkinglot entries without an ActionID, so the command claims
// them.
func ListParkings() Command {
	return &action{
		name: "listParkings",
		build: func(Args) (ami.Frame, error) {
			return ami.NewFrame(ami.FieldAction, "Parkinglots"), nil
		},
		completion: ami.ListUntil("ParkinglotsComplete"),
		claims:     []string{"Parkinglot"},
		interpret: func(_ Args, r ami.Result) (any, error) {
			if r.Err != nil {
				return nil, r.Err
			}
			out := []ParkingLot{}
			for _, f := range r.Events("Parkinglot") {
				first, err1 := strconv.Atoi(f.Or("StartExten", f.Get("StartSpace")))
				last, err2 := strconv.Atoi(f.Or("StopExten", f.Get("StopSpace")))
				if err1 != nil || err2 != nil || last < first {
					continue
				}
				out = append(out, ParkingLot{
					Name:    f.Or("Name", "default"),
					First:   first,
					Last:    last,
					Timeout: atoi(f.Get("Timeout")),
				})
			}
			return out, nil
		},
	}
}

// ListVoicemail lists configured mailboxes.
func ListVoicemail() Command {
	return list("listVoicemail", "VoicemailUsersList", "VoicemailUserEntryComplete", func(_ Args, r ami.Result) (any, error) {
		out := []Mailbox{}
		for _, f := range r.Events("VoicemailUserEntry") {
			if f.Get("VoiceMailbox") == "" {
				continue
			}
			out = append(out, Mailbox{
				Mailbox:          f.Get("VoiceMailbox"),
				Context:          f.Get("VMContext"),
				Name:             f.Get("Fullname"),
				Email:            f.Get("Email"),
				NewMessages:      atoi(f.Get("NewMessageCount")),
				OldMessages:      atoi(f.Get("OldMessageCount")),
				MaxMessageCount:  atoi(f.Get("MaxMessageCount")),
				MaxMessageLength: atoi(f.Get("MaxMessageLength")),
			})
		}
		return out, nil
	})
}

// ListDahdiChannels lists DAHDI channels with their alarm state.
func ListDahdiChannels() Command {
	return list("listDahdiChannels", "DAHDIShowChannels", "DAHDIShowChannelsComplete", func(_ Args, r ami.Result) (any, error) {
		out := []DahdiChannel{}
		for _, f := range r.Events("DAHDIShowChannels") {
			ch, alarm := f.Get("DAHDIChannel"), f.Get("Alarm")
			if ch == "" || alarm == "" {
				continue
			}
			out = append(out, DahdiChannel{Channel: ch, Alarm: alarm, Status: status.DahdiTrunk(alarm)})
		}
		return out, nil
	})
}
