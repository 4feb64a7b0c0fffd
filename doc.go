// Package dynamixel talks to Dynamixel servo actuators over a shared
// serial bus.
//
// Servos are modeled through their control tables: a register schema per
// model, with per-model overrides layered on a shared base. The library
// converts between raw register counts and physical units (degrees, RPM,
// milliamps), tracks commanded targets and distinguishes device-side
// command rejections from bus and hardware failures.
//
// # Usage
//
// Open a bus, discover the servos on it and command them:
//
//	bus, err := serialbus.Open(serialbus.Config{Port: "/dev/ttyUSB0"}, nil)
//	if err != nil { ... }
//	ctrl := dxl.NewController(bus, dxl.Config{}, nil)
//	if err := ctrl.Connect(ctx); err != nil { ... }
//	defer ctrl.Disconnect()
//
//	s, _ := ctrl.GetServo(1)
//	s.EnableTorque(ctx)
//	s.SetPosition(ctx, 180)
//	ctrl.WaitForServos(ctx, 5*time.Second)
//
// # Packages
//
// The module is organized into the following packages:
//
//   - pkg/dxl: control tables, model registry, Servo and Controller
//   - pkg/protocol: protocol 2.0 wire constants and CRC
//   - pkg/serialbus: the serial transport
//   - pkg/monitor: background position polling for TUIs
//   - cmd/dxl-scan: bus discovery and configuration
//   - cmd/dxl-monitor: live position chart
package dynamixel
