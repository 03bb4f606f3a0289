package commands

import "sort"

// Builtins returns a fresh instance of every built-in command.
func Builtins() []Command {
	return []Command{
		Ping(),
		AstVersion(),
		DNDGet(),
		DNDSet(),
		CFGet(),
		CFSet(),
		CFBGet(),
		CFBSet(),
		CWGet(),
		ListChannels(),
		ExtenStatus(),
		ListSipPeers(),
		ListIaxPeers(),
		SipDetails(),
		ListQueues(),
		QueueDetails(),
		ListParkedCalls(),
		ListParkings(),
		ListVoicemail(),
		ListDahdiChannels(),
		Hangup(),
		Call(),
		Redirect(),
		AttendedTransfer(),
		TransferToVoicemail(),
		Park(),
		RecordCall(),
		StopRecordCall(),
		SpyListen(),
		SpySpeak(),
		PlayDTMF(),
		Mute(),
		Unmute(),
		QueueMemberAdd(),
		QueueMemberRemove(),
		QueueMemberPause(),
		MeetmeMute(),
		MeetmeUnmute(),
	}
}

// Default returns a registry of all built-in commands.
func Default() *Registry {
	return New(Builtins()...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
