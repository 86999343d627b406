package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehr/dietorders/internal/domain/diet"
	"github.com/ehr/dietorders/internal/domain/mealorder"
	"github.com/ehr/dietorders/internal/platform/db"
)

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage patient diet orders",
	}
	cmd.AddCommand(orderAdmitCmd())
	cmd.AddCommand(orderOpenCmd())
	cmd.AddCommand(orderShowCmd())
	cmd.AddCommand(orderListCmd())
	cmd.AddCommand(orderDietCmd())
	cmd.AddCommand(orderDischargeCmd())
	return cmd
}

func orderAdmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admit",
		Short: "Create the first order for a newly admitted patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			room, _ := cmd.Flags().GetString("room")
			dietName, _ := cmd.Flags().GetString("diet")
			ada, _ := cmd.Flags().GetBool("ada")
			textures, _ := cmd.Flags().GetStringSlice("texture")
			fluid, _ := cmd.Flags().GetString("fluid")
			patient, _ := cmd.Flags().GetString("patient-id")
			dateStr, _ := cmd.Flags().GetString("date")

			dietType, err := diet.ParseDietType(dietName)
			if err != nil {
				return err
			}
			mods, err := parseTexture(textures)
			if err != nil {
				return err
			}
			tier, err := diet.ParseFluidTier(fluid)
			if err != nil {
				return err
			}
			req := mealorder.AdmitRequest{
				PatientName: name,
				Room:        room,
				Diet:        diet.DietProfile{Type: dietType, IsADAFriendly: ada},
				Texture:     mods,
				Fluid:       tier,
			}
			if patient != "" {
				if req.PatientID, err = parseID(patient); err != nil {
					return err
				}
			}

			return withApp(func(ctx context.Context, a *app) error {
				if req.Date, err = parseDate(dateStr, a.loc, a.today()); err != nil {
					return err
				}
				o, err := a.orders.Admit(ctx, req)
				if err != nil {
					return err
				}
				return printOrder(cmd, o)
			})
		},
	}
	cmd.Flags().String("name", "", "Patient name")
	cmd.Flags().String("room", "", "Room")
	cmd.Flags().String("diet", string(diet.DietRegular), "Diet type")
	cmd.Flags().Bool("ada", false, "Apply ADA (diabetic) substitutions")
	cmd.Flags().StringSlice("texture", nil, "Texture modifications, e.g. mechanical-ground,bread-ok")
	cmd.Flags().String("fluid", string(diet.FluidNone), "Fluid restriction tier, e.g. 1200ml")
	cmd.Flags().String("patient-id", "", "Existing patient id (default: new)")
	cmd.Flags().String("date", "", "Order date (YYYY-MM-DD), default today")
	cmd.Flags().Bool("json", false, "Print JSON")
	cmd.MarkFlagRequired("name")
	return cmd
}

func orderOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <patient-id>",
		Short: "Open a patient's order for a day, creating it from the previous day if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := parseID(args[0])
			if err != nil {
				return err
			}
			dateStr, _ := cmd.Flags().GetString("date")
			return withApp(func(ctx context.Context, a *app) error {
				day, err := parseDate(dateStr, a.loc, a.today())
				if err != nil {
					return err
				}
				var o *mealorder.PatientOrder
				err = db.WithTx(ctx, a.pool, func(ctx context.Context) error {
					o, err = a.orders.OpenOrder(ctx, patientID, day)
					return err
				})
				if err != nil {
					return err
				}
				return printOrder(cmd, o)
			})
		},
	}
	cmd.Flags().String("date", "", "Order date (YYYY-MM-DD), default today")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func orderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				o, err := a.orders.Get(ctx, id)
				if err != nil {
					return err
				}
				return printOrder(cmd, o)
			})
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func orderListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active orders, or history with --from/--to",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromStr, _ := cmd.Flags().GetString("from")
			toStr, _ := cmd.Flags().GetString("to")
			asJSON, _ := cmd.Flags().GetBool("json")
			return withApp(func(ctx context.Context, a *app) error {
				var orders []*mealorder.PatientOrder
				var err error
				if fromStr == "" && toStr == "" {
					orders, err = a.orders.ListActive(ctx, a.today())
				} else {
					from, perr := parseDate(fromStr, a.loc, a.today().AddDate(0, 0, -a.orders.RetentionDays()))
					if perr != nil {
						return perr
					}
					to, perr := parseDate(toStr, a.loc, a.today())
					if perr != nil {
						return perr
					}
					orders, err = a.orders.History(ctx, from, to)
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), orders)
				}
				printOrderTable(cmd.OutOrStdout(), orders)
				return nil
			})
		},
	}
	cmd.Flags().String("from", "", "History start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "History end date (YYYY-MM-DD)")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func orderDietCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diet <order-id>",
		Short: "Change diet, texture or fluid restriction on an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			change, err := dietChangeFromFlags(cmd)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				if change.Diet != nil {
					// Fill whichever half of the profile was not given.
					current, err := a.orders.Get(ctx, id)
					if err != nil {
						return err
					}
					if change.Diet.Type == "" {
						change.Diet.Type = current.Diet.Type
					}
					if !cmd.Flags().Changed("ada") {
						change.Diet.IsADAFriendly = current.Diet.IsADAFriendly
					}
				}
				o, err := a.orders.UpdateDiet(ctx, id, change)
				if err != nil {
					return err
				}
				return printOrder(cmd, o)
			})
		},
	}
	cmd.Flags().String("diet", "", "New diet type")
	cmd.Flags().Bool("ada", false, "Apply ADA (diabetic) substitutions")
	cmd.Flags().StringSlice("texture", nil, "Replace texture modifications (use 'none' to clear)")
	cmd.Flags().String("fluid", "", "New fluid restriction tier")
	cmd.Flags().Bool("drop-conflicts", false, "Drop bread items the new texture disallows")
	cmd.Flags().Bool("override-fluid", false, "Keep selections over a tighter fluid budget")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func dietChangeFromFlags(cmd *cobra.Command) (mealorder.DietChange, error) {
	var change mealorder.DietChange
	flags := cmd.Flags()
	change.DropConflicts, _ = flags.GetBool("drop-conflicts")
	change.OverrideFluid, _ = flags.GetBool("override-fluid")

	if flags.Changed("diet") || flags.Changed("ada") {
		name, _ := flags.GetString("diet")
		ada, _ := flags.GetBool("ada")
		profile := diet.DietProfile{IsADAFriendly: ada}
		if name != "" {
			t, err := diet.ParseDietType(name)
			if err != nil {
				return change, err
			}
			profile.Type = t
		}
		change.Diet = &profile
	}
	if flags.Changed("texture") {
		names, _ := flags.GetStringSlice("texture")
		if len(names) == 1 && strings.EqualFold(names[0], "none") {
			names = nil
		}
		mods, err := parseTexture(names)
		if err != nil {
			return change, err
		}
		change.Texture = &mods
	}
	if flags.Changed("fluid") {
		raw, _ := flags.GetString("fluid")
		tier, err := diet.ParseFluidTier(raw)
		if err != nil {
			return change, err
		}
		change.Fluid = &tier
	}
	return change, nil
}

func orderDischargeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discharge <order-id>",
		Short: "Stop daily rollover for the order's patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				o, err := a.orders.Discharge(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Discharged %s (%s).\n", o.PatientName, o.PatientID)
				return nil
			})
		},
	}
}

// -- meal commands --

func mealCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meal",
		Short: "Edit a meal slot on an order",
	}
	cmd.AddCommand(mealSetCmd())
	cmd.AddCommand(mealEditCmd("npo", "Mark a meal nothing-by-mouth (--off to lift)", func(ctx context.Context, a *app, cmd *cobra.Command, id mealID) (*mealorder.PatientOrder, error) {
		off, _ := cmd.Flags().GetBool("off")
		return a.orders.SetMealNPO(ctx, id.order, id.meal, !off)
	}))
	cmd.AddCommand(mealEditCmd("complete", "Mark a meal complete", func(ctx context.Context, a *app, _ *cobra.Command, id mealID) (*mealorder.PatientOrder, error) {
		return a.orders.MarkMealComplete(ctx, id.order, id.meal)
	}))
	cmd.AddCommand(mealEditCmd("clear", "Clear a meal back to pending", func(ctx context.Context, a *app, _ *cobra.Command, id mealID) (*mealorder.PatientOrder, error) {
		return a.orders.ClearMeal(ctx, id.order, id.meal)
	}))
	cmd.AddCommand(mealMenuCmd())
	return cmd
}

type mealID struct {
	order uuid.UUID
	meal  diet.Meal
}

func parseMealArgs(args []string) (mealID, error) {
	id, err := parseID(args[0])
	if err != nil {
		return mealID{}, err
	}
	meal, err := diet.ParseMeal(args[1])
	if err != nil {
		return mealID{}, err
	}
	return mealID{order: id, meal: meal}, nil
}

func mealEditCmd(use, short string, fn func(ctx context.Context, a *app, cmd *cobra.Command, id mealID) (*mealorder.PatientOrder, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <order-id> <meal>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMealArgs(args)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				o, err := fn(ctx, a, cmd, id)
				if err != nil {
					return err
				}
				return printOrder(cmd, o)
			})
		},
	}
	if use == "npo" {
		cmd.Flags().Bool("off", false, "Lift NPO")
	}
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func mealSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <order-id> <meal>",
		Short: "Replace a meal selection (items as name|category|ml)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMealArgs(args)
			if err != nil {
				return err
			}
			var sel mealorder.Selection
			for flag, dst := range map[string]*[]diet.Item{
				"item":  &sel.Items,
				"juice": &sel.Juices,
				"drink": &sel.Drinks,
			} {
				specs, _ := cmd.Flags().GetStringArray(flag)
				if *dst, err = parseItems(specs); err != nil {
					return err
				}
			}
			override, _ := cmd.Flags().GetBool("override-fluid")

			return withApp(func(ctx context.Context, a *app) error {
				o, err := a.orders.SetMealItems(ctx, id.order, id.meal, sel, mealorder.EditOptions{OverrideFluid: override})
				if err != nil {
					return err
				}
				return printOrder(cmd, o)
			})
		},
	}
	cmd.Flags().StringArray("item", nil, "Food item, e.g. 'Scrambled Eggs|Entree'")
	cmd.Flags().StringArray("juice", nil, "Juice, e.g. 'Orange Juice|Juice|120'")
	cmd.Flags().StringArray("drink", nil, "Drink, e.g. 'Milk|Drink|240'")
	cmd.Flags().Bool("override-fluid", false, "Accept a selection over the fluid budget")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func mealMenuCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu <order-id>",
		Short: "Regenerate the predetermined menu into every non-NPO meal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				o, err := a.orders.ApplyPredeterminedMenu(ctx, id)
				if err != nil {
					return err
				}
				return printOrder(cmd, o)
			})
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

// -- menu command --

func menuCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Inspect predetermined menus",
	}
	show := &cobra.Command{
		Use:   "show <diet>",
		Short: "Print the fixed menu of a predetermined diet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dietType, err := diet.ParseDietType(args[0])
			if err != nil {
				return err
			}
			ada, _ := cmd.Flags().GetBool("ada")
			fluid, _ := cmd.Flags().GetString("fluid")
			tier, err := diet.ParseFluidTier(fluid)
			if err != nil {
				return err
			}
			return printMenu(cmd.OutOrStdout(), dietType, ada, tier)
		},
	}
	show.Flags().Bool("ada", false, "Show ADA substitutions")
	show.Flags().String("fluid", "", "Audit against a fluid restriction tier")
	cmd.AddCommand(show)
	return cmd
}

// -- output --

func printOrder(cmd *cobra.Command, o *mealorder.PatientOrder) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), o)
	}
	writeOrder(cmd.OutOrStdout(), o)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOrder(w io.Writer, o *mealorder.PatientOrder) {
	ada := ""
	if o.Diet.ADA() && o.Diet.Type != diet.DietADA {
		ada = " (ADA)"
	}
	fmt.Fprintf(w, "Order %s  %s  [%s, %s]\n", o.ID, o.OrderDate.Format(dateLayout), o.Status, o.Progress())
	fmt.Fprintf(w, "Patient: %s  Room: %s  ID: %s", o.PatientName, o.Room, o.PatientID)
	if o.Discharged {
		fmt.Fprint(w, "  DISCHARGED")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Diet: %s%s  Fluid: %s", o.Diet.Type, ada, o.Fluid.Label())
	if labels := o.Texture.Labels(); len(labels) > 0 {
		fmt.Fprintf(w, "  Texture: %s", strings.Join(labels, ", "))
	}
	fmt.Fprintln(w)

	budget := diet.BudgetFor(o.Fluid)
	for i := range o.Meals {
		slot := &o.Meals[i]
		fluid := fmt.Sprintf("%dml", slot.FluidML())
		if !budget.Unlimited {
			fluid = fmt.Sprintf("%dml/%dml", slot.FluidML(), budget.For(slot.Meal))
		}
		fmt.Fprintf(w, "  %-10s %-9s %-12s %s\n", slot.Meal, slot.Status, fluid, itemList(slot.AllItems()))
	}
}

func itemList(items []diet.Item) string {
	if len(items) == 0 {
		return "-"
	}
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.String()
	}
	return strings.Join(names, ", ")
}

func printOrderTable(w io.Writer, orders []*mealorder.PatientOrder) {
	fmt.Fprintf(w, "%-36s %-10s %-8s %-24s %-12s %-18s %s\n", "ID", "DATE", "ROOM", "PATIENT", "DIET", "PROGRESS", "STATUS")
	for _, o := range orders {
		progress := string(o.Progress())
		if o.Discharged {
			progress += " (disch.)"
		}
		fmt.Fprintf(w, "%-36s %-10s %-8s %-24s %-12s %-18s %s\n",
			o.ID, o.OrderDate.Format(dateLayout), o.Room, o.PatientName, o.Diet.Type, progress, o.Status)
	}
	fmt.Fprintf(w, "%d order(s)\n", len(orders))
}

func printMenu(w io.Writer, dietType diet.DietType, ada bool, tier diet.FluidRestrictionTier) error {
	for _, meal := range diet.Meals() {
		items, err := diet.GenerateMenu(dietType, meal, ada)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s (%dml)\n", meal, diet.TotalVolume(items))
		for _, it := range items {
			fmt.Fprintf(w, "  %-28s %s\n", it.String(), it.Category)
		}
		if ob := diet.AuditMenuFluid(dietType, tier, meal, items); ob != nil {
			fmt.Fprintf(w, "  ! exceeds %s %s budget of %dml\n", tier.Label(), meal, ob.RemainingML)
		}
	}
	return nil
}

func printSummary(w io.Writer, s mealorder.Summary) {
	fmt.Fprintln(w, s.Message())
	fmt.Fprintf(w, "Date: %s  Skipped: %d  Failed: %d  Retired: %d  Took: %s\n",
		s.Date.Format(dateLayout), s.Skipped, s.Failed, s.Retired, s.Duration.Round(1e6))
	for _, warn := range s.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
}

func printPoolStats(w io.Writer, s *db.PoolStats) {
	status := "healthy"
	if !s.Healthy {
		status = "unhealthy"
	}
	fmt.Fprintf(w, "Database: %s\n", status)
	fmt.Fprintf(w, "Connections: %d total, %d idle, %d acquired (max %d)\n",
		s.TotalConns, s.IdleConns, s.AcquiredConns, s.MaxConns)
	fmt.Fprintf(w, "Acquires: %d (%s waiting)\n", s.AcquireCount, s.AcquireDuration)
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
