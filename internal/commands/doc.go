// Package commands holds the command plugins of the CTI proxy.
//
// A command knows how to build one manager action from string arguments,
// which frame completes its response, and how to turn the correlated
// frames into a typed result. Commands never see the proxy engine or the
// connection; the engine issues them through the action correlator.
//
// # Usage
//
//	reg := commands.Default()
//	cmd, _ := reg.Get("dndGet")
//	frame, err := cmd.Build(commands.Args{"exten": "200"})
//	// ... send frame, wait for the ami.Result ...
//	res, err := cmd.Interpret(args, result) // commands.DNDStatus{Exten: "200", DND: "on"}
package commands
